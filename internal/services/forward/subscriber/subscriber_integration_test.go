//go:build integration_nats
// +build integration_nats

package subscriber

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"amplisend/internal/core/batch"
	"amplisend/internal/core/event"
	"amplisend/internal/services/forward/domain"
	"amplisend/internal/services/forward/service"

	"github.com/nats-io/nats.go"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startNATS(t *testing.T) (url string, stop func()) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)

	req := tc.ContainerRequest{
		Image:        "nats:2.10-alpine",
		ExposedPorts: []string{"4222/tcp"},
		WaitingFor:   wait.ForLog("Server is ready").WithStartupTimeout(2 * time.Minute),
	}
	c, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{ContainerRequest: req, Started: true})
	if err != nil {
		cancel()
		t.Fatalf("failed to start nats container: %v", err)
	}
	host, err := c.Host(ctx)
	if err != nil {
		_ = c.Terminate(context.Background())
		cancel()
		t.Fatalf("failed to get container host: %v", err)
	}
	mapped, err := c.MappedPort(ctx, "4222/tcp")
	if err != nil {
		_ = c.Terminate(context.Background())
		cancel()
		t.Fatalf("failed to get mapped port: %v", err)
	}
	return fmt.Sprintf("nats://%s:%s", host, mapped.Port()), func() {
		_ = c.Terminate(context.Background())
		cancel()
	}
}

type memBlobs map[string]string

func (m memBlobs) Open(_ context.Context, ref domain.ObjectRef) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(m[ref.Key])), nil
}

func TestSubscriber_NATS_Integration(t *testing.T) {
	url, stop := startNATS(t)
	defer stop()

	var (
		mu   sync.Mutex
		sent []batch.Batch
	)
	sender := batch.SenderFunc(func(_ context.Context, b batch.Batch) error {
		mu.Lock()
		sent = append(sent, b)
		mu.Unlock()
		return nil
	})
	blobs := memBlobs{"dump.ndjson": `{"user_id":"u1","event_type":"login","time":1}` + "\n" +
		`{"device_id":"d1","event_type":"logout","time":2}` + "\n"}
	svc := service.New(blobs, event.NewNormalizer([]byte("k")), sender, service.Config{})

	ctx, cancel := context.WithCancel(context.Background())
	s := New(Config{URL: url, Subject: "amplisend.notifications", Queue: "amplisend"}, svc)
	done := make(chan error, 1)
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	go func() {
		<-ctx.Done()
		done <- s.Stop()
	}()

	nc, err := nats.Connect(url)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	defer nc.Close()

	msg := `{"Records":[{"eventSource":"aws:s3","awsRegion":"us-east-1","s3":{"bucket":{"name":"fxa"},"object":{"key":"dump.ndjson"}}}]}`
	resp, err := nc.Request("amplisend.notifications", []byte(msg), 10*time.Second)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	var r Reply
	if err := json.Unmarshal(resp.Data, &r); err != nil {
		t.Fatalf("reply: %v", err)
	}
	if r.Error != nil || r.Report.Records != 1 || r.Report.Results[0].Stats.Events != 2 {
		t.Fatalf("reply = %+v", r)
	}

	mu.Lock()
	if len(sent) != 1 || len(sent[0]) != 2 {
		t.Fatalf("sent = %v", sent)
	}
	mu.Unlock()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Stop: %v", err)
		}
	case <-time.After(45 * time.Second):
		t.Fatal("subscriber did not stop")
	}
}
