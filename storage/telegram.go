package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/time/rate"

	"upload-gateway/bot"
)

const (
	ChunkRefCollection = "chunk_refs"

	MaxChunkSize = 50 * 1024 * 1024 // Telegram document limit
	MaxRetries   = 3
	RetryDelay   = 2 * time.Second

	assembleConcurrency = 15
)

var downloadClient = &http.Client{
	Timeout: 120 * time.Second,
	Transport: &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 50,
		IdleConnTimeout:     90 * time.Second,
	},
}

// ChunkRef records where one chunk landed: which bot sent it, which message
// holds it, and the Telegram file id to fetch it back by.
type ChunkRef struct {
	UploadID  string `bson:"upload_id"`
	Sequence  int    `bson:"sequence"`
	MessageID int    `bson:"message_id"`
	FileID    string `bson:"file_id"`
	BotUser   string `bson:"bot_user"`
	Size      int64  `bson:"size"`
}

// TelegramSink stores chunk bytes as documents in a Telegram group, one
// message per chunk, and keeps the ref for each in the chunk_refs collection.
type TelegramSink struct {
	pool            *bot.Pool
	db              *mongo.Database
	groupID         int64
	sendLimiter     *rate.Limiter
	downloadLimiter *rate.Limiter
}

func NewTelegramSink(pool *bot.Pool, db *mongo.Database, groupID int64) *TelegramSink {
	return &TelegramSink{
		pool:            pool,
		db:              db,
		groupID:         groupID,
		sendLimiter:     rate.NewLimiter(rate.Limit(20), 40),
		downloadLimiter: rate.NewLimiter(rate.Limit(20), 40),
	}
}

func (s *TelegramSink) refs() *mongo.Collection {
	return s.db.Collection(ChunkRefCollection)
}

func (s *TelegramSink) Store(ctx context.Context, uploadID string, sequence int, data []byte) error {
	if int64(len(data)) > MaxChunkSize {
		return fmt.Errorf("chunk size %d exceeds maximum %d", len(data), MaxChunkSize)
	}

	exists, err := s.refExists(ctx, uploadID, sequence)
	if err != nil {
		return fmt.Errorf("failed to check chunk ref: %w", err)
	}
	if exists {
		log.Printf("[Sink] Chunk %d already stored for upload %s (idempotent)", sequence, uploadID)
		return nil
	}

	var lastErr error
	for attempt := 0; attempt < MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt))) * RetryDelay
			log.Printf("[Sink] Chunk %d attempt %d/%d, waiting %v", sequence, attempt+1, MaxRetries, backoff)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := s.storeOnce(ctx, uploadID, sequence, data)
		if err == nil {
			return nil
		}
		lastErr = err
		if !isRetryableError(err) {
			break
		}
	}
	return fmt.Errorf("failed after %d retries: %w", MaxRetries, lastErr)
}

func (s *TelegramSink) storeOnce(ctx context.Context, uploadID string, sequence int, data []byte) error {
	if err := s.sendLimiter.Wait(ctx); err != nil {
		return err
	}

	currentBot := s.pool.Next()
	if currentBot == nil {
		return fmt.Errorf("no bots available")
	}

	fileName := fmt.Sprintf("chunk_%s_%d", uploadID, sequence)
	doc := tgbotapi.NewDocument(s.groupID, tgbotapi.FileReader{Name: fileName, Reader: bytes.NewReader(data)})
	doc.Caption = fmt.Sprintf("ID: %s\nPart: %d", uploadID, sequence)

	msg, err := currentBot.Send(doc)
	if err != nil {
		return fmt.Errorf("telegram upload failed: %w", err)
	}
	if msg.Document == nil {
		return fmt.Errorf("no document in message")
	}

	ref := ChunkRef{
		UploadID:  uploadID,
		Sequence:  sequence,
		MessageID: msg.MessageID,
		FileID:    msg.Document.FileID,
		BotUser:   currentBot.Self.UserName,
		Size:      int64(len(data)),
	}

	insertCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := s.refs().InsertOne(insertCtx, ref); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			// A concurrent retry won the race; the chunk is stored.
			return nil
		}
		return fmt.Errorf("failed to record chunk ref: %w", err)
	}

	log.Printf("[Sink] Chunk %d/%s stored (%.2f KB, bot: %s, msg: %d)",
		sequence, uploadID, float64(len(data))/1024, currentBot.Self.UserName, msg.MessageID)
	return nil
}

func (s *TelegramSink) refExists(ctx context.Context, uploadID string, sequence int) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	count, err := s.refs().CountDocuments(ctx, bson.M{"upload_id": uploadID, "sequence": sequence})
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Assemble downloads every stored chunk with bounded concurrency and writes
// them to w strictly in sequence order, buffering chunks that arrive early.
func (s *TelegramSink) Assemble(ctx context.Context, uploadID string, w io.Writer) error {
	listCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "sequence", Value: 1}})
	cursor, err := s.refs().Find(listCtx, bson.M{"upload_id": uploadID}, opts)
	if err != nil {
		return fmt.Errorf("failed to list chunk refs: %w", err)
	}

	var chunkRefs []ChunkRef
	if err := cursor.All(listCtx, &chunkRefs); err != nil {
		return fmt.Errorf("failed to decode chunk refs: %w", err)
	}

	totalChunks := len(chunkRefs)
	if totalChunks == 0 {
		return nil
	}
	firstSeq := chunkRefs[0].Sequence

	type chunkResult struct {
		seq  int
		data []byte
		err  error
	}

	semaphore := make(chan struct{}, assembleConcurrency)
	resultChan := make(chan chunkResult, totalChunks)

	for _, ref := range chunkRefs {
		semaphore <- struct{}{}
		go func(r ChunkRef) {
			defer func() { <-semaphore }()

			var buf bytes.Buffer
			if err := s.downloadChunk(ctx, r, &buf); err != nil {
				resultChan <- chunkResult{seq: r.Sequence, err: err}
				return
			}
			resultChan <- chunkResult{seq: r.Sequence, data: buf.Bytes()}
		}(ref)
	}

	log.Printf("[Sink] Assembling upload %s (%d chunks, concurrent: %d)", uploadID, totalChunks, assembleConcurrency)

	buffered := make(map[int][]byte)
	nextSeq := firstSeq
	received := 0
	totalWritten := int64(0)

	for received < totalChunks {
		res := <-resultChan
		received++

		if res.err != nil {
			return fmt.Errorf("failed chunk %d: %w", res.seq, res.err)
		}
		buffered[res.seq] = res.data

		for {
			data, ok := buffered[nextSeq]
			if !ok {
				break
			}
			n, err := w.Write(data)
			if err != nil {
				return err
			}
			totalWritten += int64(n)
			delete(buffered, nextSeq)
			nextSeq++
		}
	}

	log.Printf("[Sink] Upload %s assembled (%d bytes)", uploadID, totalWritten)
	return nil
}

func (s *TelegramSink) downloadChunk(ctx context.Context, ref ChunkRef, w io.Writer) error {
	if err := s.downloadLimiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit error: %w", err)
	}

	targetBot := s.pool.ByUsername(ref.BotUser)
	if targetBot == nil {
		log.Printf("[Sink] Bot %q not found for chunk %d, using fallback", ref.BotUser, ref.Sequence)
		targetBot = s.pool.Next()
		if targetBot == nil {
			return fmt.Errorf("no bots available")
		}
	}

	file, err := targetBot.GetFile(tgbotapi.FileConfig{FileID: ref.FileID})
	if err != nil {
		return fmt.Errorf("failed to get file info: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, file.Link(targetBot.Token), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := downloadClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download chunk: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed with status: %d", resp.StatusCode)
	}

	written, err := io.Copy(w, resp.Body)
	if err != nil {
		return fmt.Errorf("failed to write chunk: %w", err)
	}
	if written != ref.Size {
		log.Printf("[Sink] Chunk %d size mismatch: expected %d, got %d", ref.Sequence, ref.Size, written)
	}
	return nil
}

func isRetryableError(err error) bool {
	errMsg := err.Error()
	return strings.Contains(errMsg, "timeout") ||
		strings.Contains(errMsg, "Too Many Requests") ||
		strings.Contains(errMsg, "connection") ||
		strings.Contains(errMsg, "EOF")
}
