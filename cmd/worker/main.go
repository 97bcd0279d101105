package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/hqkang/chatvault/internal/chat"
	"github.com/hqkang/chatvault/internal/config"
	"github.com/hqkang/chatvault/internal/db"
	"github.com/hqkang/chatvault/internal/store/rabbitmq"
)

type jobMsg struct {
	JobID string `json:"job_id"`
}

// maxJobAttempts bounds the retry cycle; the attempt that hits the bound is
// parked on the DLQ instead of being nacked back into it.
const maxJobAttempts = 3

// parkOnDLQ moves an exhausted or unparseable delivery to the terminal queue
// and acks it off the main queue. If even that fails, nack into the retry
// cycle so the message is not lost.
func parkOnDLQ(ch *amqp.Channel, queue string, d amqp.Delivery) {
	err := ch.PublishWithContext(context.Background(),
		"", queue+".dlq", false, false,
		amqp.Publishing{
			ContentType:  d.ContentType,
			DeliveryMode: amqp.Persistent,
			Body:         d.Body,
			Headers:      d.Headers,
			Timestamp:    time.Now(),
		})
	if err != nil {
		log.Printf("dlq publish failed: %v", err)
		_ = d.Nack(false, false)
		return
	}
	_ = d.Ack(false)
}

func workerConcurrency() int {
	v := os.Getenv("WORKER_CONCURRENCY")
	if v == "" {
		return 2
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 2
	}
	if n > 50 {
		return 50
	}
	return n
}

func main() {
	cfg := config.Load()

	gdb := db.Connect(cfg.DBDriver, cfg.DBDSN)

	repo := chat.NewRepo(gdb)
	// no cache on the worker side; exports always read the database
	svc := chat.NewService(repo, nil, cfg.DefaultPageSize, cfg.MaxPageSize)
	formats := chat.DefaultExportRegistry()

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("rabbit dial: %v", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		log.Fatalf("rabbit channel: %v", err)
	}
	defer ch.Close()

	if err := rabbitmq.DeclareTopology(ch, cfg.RabbitQueue); err != nil {
		log.Fatalf("queue declare: %v", err)
	}

	concurrency := workerConcurrency()

	if err := ch.Qos(concurrency, 0, false); err != nil {
		log.Fatalf("qos: %v", err)
	}

	msgs, err := ch.Consume(cfg.RabbitQueue, "", false, false, false, false, nil)
	if err != nil {
		log.Fatalf("consume: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf("export worker started, queue=%s concurrency=%d dir=%s", cfg.RabbitQueue, concurrency, cfg.ExportDir)

	// worker pool
	jobs := make(chan amqp.Delivery, concurrency*2)

	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			for d := range jobs {
				var m jobMsg
				if err := json.Unmarshal(d.Body, &m); err != nil || m.JobID == "" {
					// unparseable, retrying can't help
					log.Printf("worker=%d bad message: %v", workerID, err)
					parkOnDLQ(ch, cfg.RabbitQueue, d)
					continue
				}

				start := time.Now()
				if err := handleJob(ctx, svc, repo, formats, cfg.ExportDir, m.JobID); err != nil {
					attempt := rabbitmq.DeathCount(d.Headers, cfg.RabbitQueue) + 1
					log.Printf("worker=%d job %s failed attempt=%d cost=%s err=%v",
						workerID, m.JobID, attempt, time.Since(start), err)
					if attempt >= maxJobAttempts {
						parkOnDLQ(ch, cfg.RabbitQueue, d)
					} else {
						// dead-letters to the retry queue, which TTLs the
						// message back here
						_ = d.Nack(false, false)
					}
					continue
				}

				if err := d.Ack(false); err != nil {
					log.Printf("worker=%d ack failed job=%s err=%v", workerID, m.JobID, err)
				}
			}
		}(i)
	}

	// dispatcher
	for {
		select {
		case <-ctx.Done():
			log.Printf("worker shutting down")
			close(jobs)
			wg.Wait()
			return

		case d, ok := <-msgs:
			if !ok {
				log.Printf("delivery channel closed")
				time.Sleep(1 * time.Second)
				continue
			}
			jobs <- d
		}
	}
}

func handleJob(ctx context.Context, svc *chat.Service, repo *chat.Repo, formats *chat.ExportRegistry, exportDir, jobID string) error {
	jobStart := time.Now()

	_ = repo.UpdateExportJobRunning(ctx, jobID)

	j, err := repo.GetExportJobByID(ctx, jobID)
	if err != nil {
		return err
	}

	var chatIDs []string
	if err := json.Unmarshal([]byte(j.ChatIDs), &chatIDs); err != nil {
		_ = repo.MarkExportJobFailed(ctx, jobID, "bad chat id list: "+err.Error())
		return err
	}

	write, err := formats.Get(j.Format)
	if err != nil {
		_ = repo.MarkExportJobFailed(ctx, jobID, err.Error())
		return err
	}

	doc, err := svc.Export(ctx, chatIDs)
	if err != nil {
		_ = repo.MarkExportJobFailed(ctx, jobID, err.Error())
		return err
	}

	if err := os.MkdirAll(exportDir, 0o755); err != nil {
		_ = repo.MarkExportJobFailed(ctx, jobID, err.Error())
		return err
	}
	path := filepath.Join(exportDir, fmt.Sprintf("chats-%s.%s", j.ID, j.Format))
	f, err := os.Create(path)
	if err != nil {
		_ = repo.MarkExportJobFailed(ctx, jobID, err.Error())
		return err
	}
	if err := write(f, doc); err != nil {
		_ = f.Close()
		_ = repo.MarkExportJobFailed(ctx, jobID, err.Error())
		return err
	}
	if err := f.Close(); err != nil {
		_ = repo.MarkExportJobFailed(ctx, jobID, err.Error())
		return err
	}

	if err := repo.MarkExportJobSucceeded(ctx, jobID, path); err != nil {
		return err
	}

	if total := time.Since(jobStart); total > 2*time.Second {
		log.Printf("job_timing job=%s chats=%d total=%s", jobID, len(doc.Chats), total)
	}
	return nil
}
