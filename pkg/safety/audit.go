package safety

import (
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mayhemchaos/mayhem-go/pkg/log"
	"github.com/mayhemchaos/mayhem-go/pkg/types"
)

// AuditRecord is one append-only line in the audit trail
type AuditRecord struct {
	ID            string               `json:"id"`
	Timestamp     time.Time            `json:"timestamp"`
	Experiment    string               `json:"experiment"`
	Type          types.ExperimentType `json:"type"`
	TargetService string               `json:"target_service,omitempty"`
	Duration      int                  `json:"duration"`
	Environment   string               `json:"environment"`
	Authorized    bool                 `json:"authorized"`
	Violations    []Violation          `json:"violations,omitempty"`
}

// AuditLogger appends decision records to a json-lines file. Audit is
// best-effort, write failures are logged and swallowed so they can never
// affect the returned decision.
type AuditLogger struct {
	mu   sync.Mutex
	path string
}

func NewAuditLogger(config AuditConfig) *AuditLogger {
	path := config.LogFile
	if path == "" {
		path = "chaos-audit.log"
	}
	return &AuditLogger{path: path}
}

// Record appends one decision to the trail
func (a *AuditLogger) Record(request *types.ExperimentRequest, envType string, authorized bool, violations []Violation) {
	record := AuditRecord{
		ID:            uuid.NewString(),
		Timestamp:     time.Now().UTC(),
		Experiment:    request.Name,
		Type:          request.Type,
		TargetService: request.Target.Service,
		Duration:      request.Duration,
		Environment:   envType,
		Authorized:    authorized,
		Violations:    violations,
	}

	line, err := json.Marshal(record)
	if err != nil {
		log.Warnf("unable to marshal audit record, err: %v", err)
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	file, err := os.OpenFile(a.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		log.Warnf("unable to open audit log %v, err: %v", a.path, err)
		return
	}
	defer file.Close()

	if _, err := file.Write(append(line, '\n')); err != nil {
		log.Warnf("unable to append audit record, err: %v", err)
	}
}
