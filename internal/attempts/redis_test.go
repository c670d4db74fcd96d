//go:build integration

package attempts

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"classattend/internal/attendance"
)

func TestRedisLogCapped(t *testing.T) {
	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil || container == nil {
		t.Skipf("docker not available, skipping integration test: %v", err)
	}
	t.Cleanup(func() { container.Terminate(ctx) })
	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("endpoint: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: endpoint})
	defer client.Close()

	l := NewRedisLog(client, 3)
	for i := 0; i < 5; i++ {
		a := attendance.Attempt{SessionID: "s1", StudentID: fmt.Sprintf("st%d", i), Accepted: i%2 == 0}
		if err := l.Append(ctx, a); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	got, err := l.List(ctx, "s1", 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 3 || got[0].StudentID != "st4" || got[2].StudentID != "st2" {
		t.Fatalf("attempts = %+v", got)
	}
}
