package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"lichka/internal/api"
	"lichka/internal/config"
)

// AddUser provisions a user through the admin API of a running server and
// prints the first session token.
func AddUser(username, displayName string, cfg *config.Config, out io.Writer) error {
	reqBody, err := json.Marshal(api.AddUserRequest{Username: username, DisplayName: displayName})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("http://%s/admin/users", cfg.AdminAddr)
	resp, err := http.Post(url, "application/json", bytes.NewBuffer(reqBody))
	if err != nil {
		return fmt.Errorf("failed to call admin API: %w. Is the server running?", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("failed to add user (Status: %d): %s", resp.StatusCode, string(body))
	}

	var result api.AddUserResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	fmt.Fprintf(out, "\nUser Created Successfully!\n")
	fmt.Fprintf(out, "Username:      %s\n", result.Username)
	fmt.Fprintf(out, "User ID:       %s\n", result.UserID)
	fmt.Fprintf(out, "Token:         %s\n", result.Token)
	fmt.Fprintf(out, "Token Expiry:  %s\n\n", time.Unix(result.TokenExpiry, 0).Format(time.RFC3339))
	fmt.Fprintln(out, "Pass the token as a Bearer token or as ?token= on the websocket URL.")
	return nil
}
