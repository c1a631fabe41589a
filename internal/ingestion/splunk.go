// Package splunk provides bidirectional Splunk HEC integration.
// Raw threat records arrive through HEC-compatible endpoints and analyzed
// indicators are exported back to Splunk.
package splunk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/lvonguyen/sectorintel/internal/intel"
	"github.com/lvonguyen/sectorintel/internal/observability"
)

// ErrBatchTooLarge is returned when a request carries more events than allowed.
var ErrBatchTooLarge = errors.New("batch exceeds maximum size")

// HECReceiver accepts raw threat records via the Splunk HEC protocol.
type HECReceiver struct {
	config  ReceiverConfig
	handler RecordHandler
	logger  *zap.Logger
	metrics *observability.Metrics
	mu      sync.RWMutex
	stats   ReceiverStats
}

// ReceiverConfig holds HEC receiver configuration.
type ReceiverConfig struct {
	TokenEnv     string `yaml:"token_env"`
	MaxBatchSize int    `yaml:"max_batch_size"`
	MaxEventSize int    `yaml:"max_event_size"`
}

// DefaultReceiverConfig returns sensible defaults.
func DefaultReceiverConfig() ReceiverConfig {
	return ReceiverConfig{
		TokenEnv:     "SPLUNK_HEC_TOKEN_INBOUND",
		MaxBatchSize: 1000,
		MaxEventSize: 1024 * 1024, // 1MB
	}
}

// ReceiverStats tracks receiver metrics.
type ReceiverStats struct {
	EventsReceived int64
	EventsDropped  int64
	BytesReceived  int64
	LastEventAt    time.Time
}

// RecordHandler processes the records of one HEC request.
type RecordHandler func(ctx context.Context, records []intel.RawThreatRecord) error

// HECEvent represents a Splunk HEC event.
type HECEvent struct {
	Time       float64        `json:"time,omitempty"`
	Host       string         `json:"host,omitempty"`
	Source     string         `json:"source,omitempty"`
	SourceType string         `json:"sourcetype,omitempty"`
	Index      string         `json:"index,omitempty"`
	Event      any            `json:"event"`
	Fields     map[string]any `json:"fields,omitempty"`
}

// NewHECReceiver creates a new HEC receiver.
func NewHECReceiver(config ReceiverConfig, handler RecordHandler, logger *zap.Logger, metrics *observability.Metrics) *HECReceiver {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.MaxEventSize <= 0 {
		config.MaxEventSize = DefaultReceiverConfig().MaxEventSize
	}
	return &HECReceiver{
		config:  config,
		handler: handler,
		logger:  logger,
		metrics: metrics,
	}
}

// Routes returns the HEC endpoints, to be mounted at /services/collector.
func (r *HECReceiver) Routes() chi.Router {
	router := chi.NewRouter()
	router.Post("/event", r.handleEvent)
	router.Post("/event/1.0", r.handleEvent)
	router.Post("/raw", r.handleRaw)
	router.Get("/health", r.handleHealth)
	router.Get("/health/1.0", r.handleHealth)
	return router
}

// Stats returns current receiver statistics.
func (r *HECReceiver) Stats() ReceiverStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stats
}

// handleEvent accepts one or more HEC events whose event payload is a raw
// threat record.
func (r *HECReceiver) handleEvent(w http.ResponseWriter, req *http.Request) {
	if !r.validateToken(req) {
		writeHEC(w, http.StatusForbidden, "Invalid token", 4)
		return
	}

	body, ok := r.readBody(w, req)
	if !ok {
		return
	}

	events, err := r.parseEvents(body)
	if err != nil {
		writeHEC(w, http.StatusBadRequest, err.Error(), 6)
		return
	}

	records := make([]intel.RawThreatRecord, 0, len(events))
	for i, ev := range events {
		rec, err := recordFromEvent(ev)
		if err != nil {
			writeHEC(w, http.StatusBadRequest, fmt.Sprintf("Invalid event %d: %v", i, err), 6)
			return
		}
		records = append(records, rec)
	}

	r.process(w, req, records, len(body))
}

// handleRaw accepts newline-delimited raw threat records without the HEC
// envelope.
func (r *HECReceiver) handleRaw(w http.ResponseWriter, req *http.Request) {
	if !r.validateToken(req) {
		writeHEC(w, http.StatusForbidden, "Invalid token", 4)
		return
	}

	body, ok := r.readBody(w, req)
	if !ok {
		return
	}

	var records []intel.RawThreatRecord
	decoder := json.NewDecoder(bytes.NewReader(body))
	for decoder.More() {
		var rec intel.RawThreatRecord
		if err := decoder.Decode(&rec); err != nil {
			writeHEC(w, http.StatusBadRequest, "Invalid data format", 6)
			return
		}
		if rec.Source == "" {
			rec.Source = req.URL.Query().Get("source")
		}
		records = append(records, rec)
		if r.config.MaxBatchSize > 0 && len(records) > r.config.MaxBatchSize {
			writeHEC(w, http.StatusBadRequest, ErrBatchTooLarge.Error(), 6)
			return
		}
	}
	if len(records) == 0 {
		writeHEC(w, http.StatusBadRequest, "No data", 5)
		return
	}

	r.process(w, req, records, len(body))
}

// readBody reads the request body up to MaxEventSize. An oversized body is
// rejected whole with 413.
func (r *HECReceiver) readBody(w http.ResponseWriter, req *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, req.Body, int64(r.config.MaxEventSize)))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			r.metrics.IncRecordFailure("hec")
			writeHEC(w, http.StatusRequestEntityTooLarge, "Request entity too large", 6)
			return nil, false
		}
		writeHEC(w, http.StatusBadRequest, "Error reading body", 6)
		return nil, false
	}
	return body, true
}

func (r *HECReceiver) process(w http.ResponseWriter, req *http.Request, records []intel.RawThreatRecord, size int) {
	r.mu.Lock()
	r.stats.EventsReceived += int64(len(records))
	r.stats.BytesReceived += int64(size)
	r.stats.LastEventAt = time.Now()
	r.mu.Unlock()

	if r.handler != nil {
		if err := r.handler(req.Context(), records); err != nil {
			r.mu.Lock()
			r.stats.EventsDropped += int64(len(records))
			r.mu.Unlock()
			r.metrics.IncRecordFailure("hec")
			r.logger.Error("Failed to process HEC records",
				zap.Int("records", len(records)),
				zap.Error(err),
			)
			writeHEC(w, http.StatusInternalServerError, "Error processing events", 8)
			return
		}
	}

	writeHEC(w, http.StatusOK, "Success", 0)
}

// handleHealth handles health check requests.
func (r *HECReceiver) handleHealth(w http.ResponseWriter, req *http.Request) {
	writeHEC(w, http.StatusOK, "HEC is healthy", 17)
}

// validateToken checks the HEC token. It fails closed when no token is
// configured and only accepts the Authorization header.
func (r *HECReceiver) validateToken(req *http.Request) bool {
	expectedToken := os.Getenv(r.config.TokenEnv)
	if expectedToken == "" {
		return false
	}

	auth := req.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Splunk ") {
		return false
	}
	return strings.TrimPrefix(auth, "Splunk ") == expectedToken
}

// parseEvents parses HEC event body (JSON or newline-delimited).
func (r *HECReceiver) parseEvents(body []byte) ([]HECEvent, error) {
	var single HECEvent
	if err := json.Unmarshal(body, &single); err == nil {
		return []HECEvent{single}, nil
	}

	var events []HECEvent
	decoder := json.NewDecoder(bytes.NewReader(body))
	for decoder.More() {
		var event HECEvent
		if err := decoder.Decode(&event); err != nil {
			return nil, fmt.Errorf("failed to parse event: %w", err)
		}
		events = append(events, event)
		if r.config.MaxBatchSize > 0 && len(events) > r.config.MaxBatchSize {
			return nil, fmt.Errorf("%w: %d", ErrBatchTooLarge, r.config.MaxBatchSize)
		}
	}

	if len(events) == 0 {
		return nil, fmt.Errorf("no valid events found")
	}
	return events, nil
}

// recordFromEvent decodes the event payload as a raw record. A string payload
// is read as JSON text. The envelope source fills a missing record source.
func recordFromEvent(ev HECEvent) (intel.RawThreatRecord, error) {
	var data []byte
	switch payload := ev.Event.(type) {
	case nil:
		return intel.RawThreatRecord{}, fmt.Errorf("event is empty")
	case string:
		data = []byte(payload)
	default:
		var err error
		if data, err = json.Marshal(payload); err != nil {
			return intel.RawThreatRecord{}, err
		}
	}

	var rec intel.RawThreatRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return intel.RawThreatRecord{}, fmt.Errorf("event is not a threat record: %w", err)
	}
	if rec.Source == "" {
		rec.Source = ev.Source
	}
	return rec, nil
}

func writeHEC(w http.ResponseWriter, status int, text string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{"text": text, "code": code})
}

// ===========================================================================
// HEC Sender - Sends analyzed indicators to Splunk
// ===========================================================================

// HECSender sends indicators to Splunk via HEC.
type HECSender struct {
	config     SenderConfig
	token      string
	httpClient *http.Client
	logger     *zap.Logger
	mu         sync.RWMutex
	stats      SenderStats
}

// SenderConfig holds HEC sender configuration.
type SenderConfig struct {
	HECURL       string        `yaml:"hec_url"`
	TokenEnv     string        `yaml:"token_env"`
	Index        string        `yaml:"index"`
	SourceType   string        `yaml:"sourcetype"`
	Source       string        `yaml:"source"`
	Timeout      time.Duration `yaml:"timeout"`
	RetryCount   int           `yaml:"retry_count"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`
}

// DefaultSenderConfig returns sensible defaults.
func DefaultSenderConfig() SenderConfig {
	return SenderConfig{
		TokenEnv:     "SPLUNK_HEC_TOKEN_OUTBOUND",
		Index:        "sectorintel",
		SourceType:   "sectorintel:indicator",
		Source:       "sectorintel",
		Timeout:      30 * time.Second,
		RetryCount:   3,
		RetryBackoff: time.Second,
	}
}

// SenderStats tracks sender metrics.
type SenderStats struct {
	EventsSent   int64
	EventsFailed int64
	BytesSent    int64
	LastSendAt   time.Time
}

// NewHECSender creates a new HEC sender.
func NewHECSender(config SenderConfig, logger *zap.Logger) (*HECSender, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	token := os.Getenv(config.TokenEnv)
	if token == "" {
		return nil, fmt.Errorf("HEC token not found in env var: %s", config.TokenEnv)
	}
	if config.HECURL == "" {
		return nil, fmt.Errorf("HEC URL is required")
	}
	if config.RetryBackoff <= 0 {
		config.RetryBackoff = time.Second
	}

	return &HECSender{
		config: config,
		token:  token,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		logger: logger,
	}, nil
}

// SendBatch exports indicators as newline-delimited HEC events. The risk score
// and priority travel as index-time fields.
func (s *HECSender) SendBatch(ctx context.Context, indicators []intel.Indicator) error {
	if len(indicators) == 0 {
		return nil
	}

	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	for _, ind := range indicators {
		if err := encoder.Encode(s.toEvent(ind)); err != nil {
			return fmt.Errorf("failed to encode indicator %s: %w", ind.ID, err)
		}
	}

	if err := s.sendWithRetry(ctx, buf.Bytes()); err != nil {
		s.mu.Lock()
		s.stats.EventsFailed += int64(len(indicators))
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	s.stats.EventsSent += int64(len(indicators))
	s.stats.BytesSent += int64(buf.Len())
	s.stats.LastSendAt = time.Now()
	s.mu.Unlock()

	s.logger.Debug("Exported indicators to Splunk", zap.Int("indicators", len(indicators)))
	return nil
}

func (s *HECSender) toEvent(ind intel.Indicator) HECEvent {
	ev := HECEvent{
		Source:     s.config.Source,
		SourceType: s.config.SourceType,
		Index:      s.config.Index,
		Event:      ind,
		Fields: map[string]any{
			"risk_score":  ind.RiskScore(),
			"severity":    ind.Properties.Severity,
			"threat_type": ind.ThreatType(),
		},
	}
	if created, err := intel.ParseTimestamp(ind.Created); err == nil {
		ev.Time = float64(created.Unix())
	}
	if ind.Analysis != nil {
		ev.Fields["priority"] = ind.Analysis.Priority
	}
	return ev
}

// sendWithRetry sends data, backing off quadratically between attempts.
func (s *HECSender) sendWithRetry(ctx context.Context, data []byte) error {
	var lastErr error

	for attempt := 0; attempt <= s.config.RetryCount; attempt++ {
		if attempt > 0 {
			wait := time.Duration(attempt*attempt) * s.config.RetryBackoff
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}

		err := s.send(ctx, data)
		if err == nil {
			return nil
		}
		lastErr = err
		s.logger.Warn("HEC send failed",
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
	}

	return fmt.Errorf("failed after %d retries: %w", s.config.RetryCount, lastErr)
}

func (s *HECSender) send(ctx context.Context, data []byte) error {
	url := strings.TrimSuffix(s.config.HECURL, "/") + "/services/collector/event"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Splunk "+s.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HEC request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("HEC returned %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

// Stats returns current sender statistics.
func (s *HECSender) Stats() SenderStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

// HealthCheck verifies connectivity to Splunk HEC.
func (s *HECSender) HealthCheck(ctx context.Context) error {
	url := strings.TrimSuffix(s.config.HECURL, "/") + "/services/collector/health"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("splunk HEC health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("splunk HEC returned status %d", resp.StatusCode)
	}
	return nil
}
