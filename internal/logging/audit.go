package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// AuditEventType names one knowledge-base event. Each event also carries a
// pre-formatted Mangle fact so the audit log can be queried declaratively.
type AuditEventType string

const (
	AuditClauseAssert  AuditEventType = "clause_assert"  // clause_op/4
	AuditClauseRetract AuditEventType = "clause_retract" // clause_op/4
	AuditQuery         AuditEventType = "query"          // query_op/4
	AuditImport        AuditEventType = "import"         // import_op/4
	AuditProtocolError AuditEventType = "protocol_error" // protocol_error/3
)

// AuditEvent is one JSON line in <logs>/<date>_audit.log.
type AuditEvent struct {
	Timestamp  int64          `json:"ts"`
	EventType  AuditEventType `json:"event"`
	Target     string         `json:"target"`
	Success    bool           `json:"success"`
	Count      int            `json:"count,omitempty"`
	DurationMs int64          `json:"dur_ms,omitempty"`
	Error      string         `json:"error,omitempty"`
	Fact       string         `json:"fact"`
}

var (
	auditFile *os.File
	auditMu   sync.Mutex
)

// InitAudit opens the audit log. It is a no-op outside debug mode.
func InitAudit() error {
	if !IsDebugMode() {
		return nil
	}

	auditMu.Lock()
	defer auditMu.Unlock()

	if auditFile != nil {
		return nil
	}

	configMu.RLock()
	dir := logsDir
	configMu.RUnlock()

	date := time.Now().Format("2006-01-02")
	file, err := os.OpenFile(filepath.Join(dir, date+"_audit.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}
	auditFile = file
	return nil
}

// CloseAudit closes the audit log file
func CloseAudit() {
	auditMu.Lock()
	defer auditMu.Unlock()

	if auditFile != nil {
		auditFile.Close()
		auditFile = nil
	}
}

// LogAudit fills in the timestamp and fact, then appends the event.
func LogAudit(event AuditEvent) {
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().UnixMilli()
	}
	event.Fact = auditFact(event)

	auditMu.Lock()
	defer auditMu.Unlock()
	if auditFile == nil {
		return
	}
	data, err := json.Marshal(event)
	if err == nil {
		auditFile.Write(append(data, '\n'))
	}
}

// auditFact renders an event as a Mangle source fact.
func auditFact(e AuditEvent) string {
	outcome := "/ok"
	if !e.Success {
		outcome = "/failed"
	}
	switch e.EventType {
	case AuditClauseAssert, AuditClauseRetract:
		return fmt.Sprintf("clause_op(%d, /%s, \"%s\", %s).", e.Timestamp, e.EventType, escapeString(e.Target), outcome)
	case AuditQuery:
		return fmt.Sprintf("query_op(%d, \"%s\", %d, %d).", e.Timestamp, escapeString(e.Target), e.Count, e.DurationMs)
	case AuditImport:
		return fmt.Sprintf("import_op(%d, \"%s\", %d, %s).", e.Timestamp, escapeString(e.Target), e.Count, outcome)
	case AuditProtocolError:
		return fmt.Sprintf("protocol_error(%d, \"%s\", \"%s\").", e.Timestamp, escapeString(e.Target), escapeString(e.Error))
	default:
		return fmt.Sprintf("audit_event(%d, /%s, \"%s\").", e.Timestamp, e.EventType, escapeString(e.Target))
	}
}

// escapeString escapes quotes, backslashes and control whitespace for Mangle strings.
func escapeString(s string) string {
	var b strings.Builder
	b.Grow(len(s) + len(s)/10)
	for _, c := range s {
		switch c {
		case '"':
			b.WriteString("\\\"")
		case '\\':
			b.WriteString("\\\\")
		case '\n':
			b.WriteString("\\n")
		case '\r':
			b.WriteString("\\r")
		case '\t':
			b.WriteString("\\t")
		default:
			b.WriteRune(c)
		}
	}
	return b.String()
}

// ClauseAsserted records an assert of the rendered clause.
func ClauseAsserted(clause string, err error) {
	LogAudit(AuditEvent{EventType: AuditClauseAssert, Target: clause, Success: err == nil, Error: errString(err)})
}

// ClauseRetracted records a retract of the rendered clause.
func ClauseRetracted(clause string, err error) {
	LogAudit(AuditEvent{EventType: AuditClauseRetract, Target: clause, Success: err == nil, Error: errString(err)})
}

// QueryAnswered records a query and its row count.
func QueryAnswered(query string, rows int, elapsed time.Duration) {
	LogAudit(AuditEvent{EventType: AuditQuery, Target: query, Success: true, Count: rows, DurationMs: elapsed.Milliseconds()})
}

// ImportCompleted records one imported document.
func ImportCompleted(path string, clauses int, err error) {
	LogAudit(AuditEvent{EventType: AuditImport, Target: path, Success: err == nil, Count: clauses, Error: errString(err)})
}

// ProtocolError records a failed engine command.
func ProtocolError(command string, err error) {
	LogAudit(AuditEvent{EventType: AuditProtocolError, Target: command, Error: errString(err)})
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
