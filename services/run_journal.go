package services

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"options-analytics/interfaces"
)

// RunJournal records every pipeline run to a daily JSON file
type RunJournal struct {
	mu         sync.Mutex
	logger     *logrus.Logger
	logDir     string
	currentLog *DailyRunLog
	now        func() time.Time
}

// DailyRunLog is a day's worth of pipeline runs
type DailyRunLog struct {
	Date    string      `json:"date"`
	Summary RunSummary  `json:"summary"`
	Runs    []RunRecord `json:"runs"`
}

// RunSummary aggregates the day's runs
type RunSummary struct {
	TotalRuns       int            `json:"total_runs"`
	FailedRuns      int            `json:"failed_runs"`
	ContractsSeen   int            `json:"contracts_seen"`
	SnapshotsSaved  int            `json:"snapshots_saved"`
	SkippedByReason map[string]int `json:"skipped_by_reason"`
	Underlyings     []string       `json:"underlyings"`
}

// RunRecord is one ProcessUnderlying call
type RunRecord struct {
	RunID        string         `json:"run_id"`
	Underlying   string         `json:"underlying"`
	Provider     string         `json:"provider"`
	StartedAt    time.Time      `json:"started_at"`
	FinishedAt   time.Time      `json:"finished_at"`
	SnapshotTime time.Time      `json:"snapshot_time,omitempty"`
	Contracts    int            `json:"contracts"`
	Snapshots    int            `json:"snapshots"`
	Saved        int            `json:"saved"`
	Skipped      map[string]int `json:"skipped,omitempty"`
	Error        string         `json:"error,omitempty"`
}

// NewRunJournal creates a journal writing under logDir
func NewRunJournal(logDir string, logger *logrus.Logger) *RunJournal {
	if logger == nil {
		logger = newTextLogger()
	}

	if err := os.MkdirAll(logDir, 0755); err != nil {
		logger.WithError(err).Error("Failed to create run journal directory")
	}

	return &RunJournal{
		logger: logger,
		logDir: logDir,
		now:    time.Now,
	}
}

// Record appends a run to the current day's log and writes it to disk
func (j *RunJournal) Record(run RunRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	date := j.now().Format("2006-01-02")
	if j.currentLog == nil || j.currentLog.Date != date {
		// Pick up runs already written today by an earlier process
		if existing, err := j.readLog(date); err == nil {
			j.currentLog = existing
		} else {
			j.currentLog = &DailyRunLog{
				Date: date,
				Summary: RunSummary{
					SkippedByReason: make(map[string]int),
				},
				Runs: make([]RunRecord, 0),
			}
		}
	}

	log := j.currentLog
	log.Runs = append(log.Runs, run)
	log.Summary.TotalRuns++
	if run.Error != "" {
		log.Summary.FailedRuns++
	}
	log.Summary.ContractsSeen += run.Contracts
	log.Summary.SnapshotsSaved += run.Saved
	if log.Summary.SkippedByReason == nil {
		log.Summary.SkippedByReason = make(map[string]int)
	}
	for reason, n := range run.Skipped {
		log.Summary.SkippedByReason[reason] += n
	}
	if !containsString(log.Summary.Underlyings, run.Underlying) {
		log.Summary.Underlyings = append(log.Summary.Underlyings, run.Underlying)
	}

	j.logger.WithFields(logrus.Fields{
		"run_id":     run.RunID,
		"underlying": run.Underlying,
		"saved":      run.Saved,
	}).Info("Run recorded")

	return j.saveLog()
}

// GetCurrentLog returns today's log
func (j *RunJournal) GetCurrentLog() (*DailyRunLog, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	date := j.now().Format("2006-01-02")
	if j.currentLog != nil && j.currentLog.Date == date {
		return j.currentLog.clone(), nil
	}

	log, err := j.readLog(date)
	if err != nil {
		return nil, fmt.Errorf("no runs recorded today: %w", interfaces.ErrNotFound)
	}
	return log, nil
}

// GetLogForDate retrieves the log for a YYYY-MM-DD date
func (j *RunJournal) GetLogForDate(date string) (*DailyRunLog, error) {
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return nil, fmt.Errorf("invalid date %q: %w", date, err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	return j.readLog(date)
}

// ListAvailableLogs returns every date with a journal file, oldest first
func (j *RunJournal) ListAvailableLogs() ([]string, error) {
	files, err := os.ReadDir(j.logDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read journal directory: %w", err)
	}

	dates := make([]string, 0)
	for _, file := range files {
		name := file.Name()
		if file.IsDir() || !strings.HasPrefix(name, "runs_") || filepath.Ext(name) != ".json" {
			continue
		}
		dates = append(dates, strings.TrimSuffix(strings.TrimPrefix(name, "runs_"), ".json"))
	}
	sort.Strings(dates)

	return dates, nil
}

// clone copies the log so callers can read it while runs keep being recorded
func (l *DailyRunLog) clone() *DailyRunLog {
	cp := *l
	cp.Runs = append([]RunRecord(nil), l.Runs...)
	cp.Summary.Underlyings = append([]string(nil), l.Summary.Underlyings...)
	cp.Summary.SkippedByReason = make(map[string]int, len(l.Summary.SkippedByReason))
	for k, v := range l.Summary.SkippedByReason {
		cp.Summary.SkippedByReason[k] = v
	}
	return &cp
}

func (j *RunJournal) filename(date string) string {
	return filepath.Join(j.logDir, fmt.Sprintf("runs_%s.json", date))
}

func (j *RunJournal) readLog(date string) (*DailyRunLog, error) {
	data, err := os.ReadFile(j.filename(date))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("journal for %s: %w", date, interfaces.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read journal for %s: %w", date, err)
	}

	var log DailyRunLog
	if err := json.Unmarshal(data, &log); err != nil {
		return nil, fmt.Errorf("failed to parse journal: %w", err)
	}
	return &log, nil
}

// saveLog writes the current log; callers hold mu
func (j *RunJournal) saveLog() error {
	data, err := json.MarshalIndent(j.currentLog, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal journal: %w", err)
	}

	if err := os.WriteFile(j.filename(j.currentLog.Date), data, 0644); err != nil {
		return fmt.Errorf("failed to write journal file: %w", err)
	}
	return nil
}

func containsString(items []string, s string) bool {
	for _, item := range items {
		if item == s {
			return true
		}
	}
	return false
}
