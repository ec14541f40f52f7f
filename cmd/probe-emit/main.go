// Command probe-emit publishes a document lifecycle event to a probeline
// daemon, or generates an ingest token.
//
// Usage:
//
//	probe-emit -hook data:afterCreate -index app -collection users -id u1 -body '{"status":"active"}'
//	probe-emit -redis-url redis://localhost:6379 -hook data:afterDelete -id u1
//	probe-emit -gen-token -format json
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/probeline/probeline/internal/auth"
	"github.com/probeline/probeline/internal/events"
)

type options struct {
	serverURL string
	redisURL  string
	token     string
	hook      string
	index     string
	coll      string
	id        string
	body      string
	genToken  bool
	format    string
	timeout   time.Duration
}

func main() {
	opts := parseFlags(flag.CommandLine, os.Args[1:])
	if err := run(context.Background(), opts, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func parseFlags(fs *flag.FlagSet, args []string) options {
	var o options
	fs.StringVar(&o.serverURL, "server", envOr("PROBELINE_URL", "http://localhost:8080"), "probed base URL")
	fs.StringVar(&o.redisURL, "redis-url", "", "publish to the Redis stream instead of HTTP")
	fs.StringVar(&o.token, "token", os.Getenv("PROBELINE_TOKEN"), "ingest bearer token")
	fs.StringVar(&o.hook, "hook", "", "event name, e.g. data:afterCreate")
	fs.StringVar(&o.index, "index", "", "document index")
	fs.StringVar(&o.coll, "collection", "", "document collection")
	fs.StringVar(&o.id, "id", "", "document ID")
	fs.StringVar(&o.body, "body", "", "document body as a JSON object")
	fs.BoolVar(&o.genToken, "gen-token", false, "generate an ingest token and its INGEST_TOKEN_HASH")
	fs.StringVar(&o.format, "format", "plain", "output format: plain or json")
	fs.DurationVar(&o.timeout, "timeout", 10*time.Second, "request timeout")
	_ = fs.Parse(args)
	return o
}

func run(ctx context.Context, o options, out io.Writer) error {
	if o.genToken {
		return generateToken(o.format, out)
	}

	payload := events.EventPayload{
		Event:      o.hook,
		Index:      o.index,
		Collection: o.coll,
		ID:         o.id,
		EmittedAt:  time.Now().UnixMilli(),
	}
	if o.body != "" {
		payload.Body = json.RawMessage(o.body)
		if !json.Valid(payload.Body) {
			return errors.New("body is not valid JSON")
		}
	}
	if err := events.ValidateEventPayload(payload); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	if o.redisURL != "" {
		return publishStream(ctx, o.redisURL, payload, out)
	}
	return postEvent(ctx, o.serverURL, o.token, payload, out)
}

func generateToken(format string, out io.Writer) error {
	tok, err := auth.GenerateToken()
	if err != nil {
		return fmt.Errorf("generate token: %w", err)
	}

	switch strings.ToLower(format) {
	case "plain":
		fmt.Fprintf(out, "token: %s\nINGEST_TOKEN_HASH=%s\n", tok.Plaintext, tok.Hash)
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]string{"token": tok.Plaintext, "hash": tok.Hash})
	default:
		return errors.New("invalid format; use plain or json")
	}
	return nil
}

func publishStream(ctx context.Context, redisURL string, payload events.EventPayload, out io.Writer) error {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	defer client.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	id, err := events.NewPublisher(client, logger).Publish(ctx, payload)
	if err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	fmt.Fprintln(out, id)
	return nil
}

func postEvent(ctx context.Context, serverURL, token string, payload events.EventPayload, out io.Writer) error {
	body, err := json.Marshal(map[string]any{
		"index":      payload.Index,
		"collection": payload.Collection,
		"id":         payload.ID,
		"body":       payload.Body,
	})
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	endpoint := strings.TrimRight(serverURL, "/") + "/v1/events/" + payload.Event
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("post event: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("post event: %s: %s", resp.Status, bytes.TrimSpace(respBody))
	}
	_, err = out.Write(respBody)
	return err
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
