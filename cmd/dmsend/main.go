// dmsend sends a single direct message through the request API.
//
//	dmsend -token <token> -to <userId> -message "hello"
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lichka/internal/client"
	"lichka/internal/models"
)

func main() {
	apiURL := flag.String("api", "http://localhost:8080", "Base URL of the API server")
	token := flag.String("token", os.Getenv("LICHKA_TOKEN"), "Session token (default $LICHKA_TOKEN)")
	to := flag.String("to", "", "Receiver user id")
	message := flag.String("message", "", "Message content")
	timeout := flag.Duration("timeout", 10*time.Second, "Timeout of each attempt")
	flag.Parse()

	if *token == "" || *to == "" || *message == "" {
		flag.Usage()
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := send(ctx, *apiURL, *token, *to, *message, *timeout); err != nil {
		log.Fatalf("send failed: %v", err)
	}
}

func send(ctx context.Context, apiURL, token, to, message string, timeout time.Duration) error {
	api := client.NewHTTPClient(apiURL, token, nil)

	meCtx, cancel := context.WithTimeout(ctx, timeout)
	me, err := api.Me(meCtx)
	cancel()
	if err != nil {
		return err
	}

	q := client.NewQueue(me.ID, to, api, nil)

	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	msg, err := q.Submit(attemptCtx, message)
	cancel()
	if err != nil {
		failed := q.Failed()
		if len(failed) == 0 || !retryable(err) {
			return err
		}
		// A lost response may mean the first attempt was stored anyway,
		// in which case this creates a second copy.
		log.Printf("first attempt failed, retrying once: %v", err)
		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		if msg, err = q.Retry(attemptCtx, failed[0].TempID); err != nil {
			return err
		}
	}

	fmt.Printf("sent %s at %s\n", msg.ID, time.UnixMilli(msg.Timestamp).Format(time.RFC3339))
	return nil
}

// retryable is false for rejections that would fail the same way again.
func retryable(err error) bool {
	for _, permanent := range []error{models.ErrValidation, models.ErrNotFound, models.ErrForbidden} {
		if errors.Is(err, permanent) {
			return false
		}
	}
	return true
}
