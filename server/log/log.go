package log

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"

	"github.com/nStangl/splaykv/server/codec"
)

type (
	// Log is the write-ahead log of the store. Every mutation
	// is appended here before it reaches the memtable.
	Log interface {
		Append(Record) error
		Truncate() error
		Close() error
	}

	LogImpl struct {
		syncCnt uint
		file    *os.File
		buff    *bufio.Writer
	}
)

const (
	syncThreshold = 2 << 7
)

var _ Log = (*LogImpl)(nil)

func New(location string) (*LogImpl, error) {
	if err := touch(location); err != nil {
		return nil, fmt.Errorf("failed to touch log file at %s: %w", location, err)
	}

	f, err := os.OpenFile(location, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file at %s: %w", location, err)
	}

	return &LogImpl{file: f, buff: bufio.NewWriter(f)}, nil
}

func (l *LogImpl) Append(r Record) error {
	if _, err := r.WriteTo(l.buff); err != nil {
		return fmt.Errorf("failed to write record to file: %w", err)
	}

	l.syncCnt++

	if l.syncCnt > syncThreshold {
		l.syncCnt = 0

		if err := l.Sync(); err != nil {
			return err
		}
	}

	return nil
}

// Sync pushes buffered records to stable storage
func (l *LogImpl) Sync() error {
	if err := l.buff.Flush(); err != nil {
		return fmt.Errorf("failed to flush log buffer: %w", err)
	}

	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync file: %w", err)
	}

	return nil
}

// Truncate drops every record. Only call it once
// everything logged so far is persisted elsewhere.
func (l *LogImpl) Truncate() error {
	if err := l.buff.Flush(); err != nil {
		return fmt.Errorf("failed to flush log buffer: %w", err)
	}

	if err := l.file.Truncate(0); err != nil {
		return fmt.Errorf("failed to truncate log file: %w", err)
	}

	l.syncCnt = 0

	return l.file.Sync()
}

func (l *LogImpl) Close() error {
	if err := l.Sync(); err != nil {
		return err
	}

	return l.file.Close()
}

// Replay feeds every record stored at location to fn, oldest first.
// A missing file is an empty log.
func Replay(location string, fn func(Record) error) error {
	if !fileExists(location) {
		return nil
	}

	f, err := os.Open(location)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	defer f.Close()

	scanner := codec.NewScanner(f)

	for scanner.Scan() {
		if err := fn(scanner.Frame()); err != nil {
			return fmt.Errorf("failed to apply log record: %w", err)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to scan log file: %w", err)
	}

	return nil
}

func touch(fileName string) error {
	d := filepath.Dir(fileName)

	if _, err := os.Stat(d); os.IsNotExist(err) {
		if err := os.MkdirAll(d, os.ModePerm); err != nil {
			return err
		}
	}

	if _, err := os.Stat(fileName); os.IsNotExist(err) {
		f, err := os.OpenFile(fileName, os.O_RDONLY|os.O_CREATE, 0o644)
		if err != nil {
			return err
		}

		return f.Close()
	}

	return nil
}

func fileExists(filename string) bool {
	info, err := os.Stat(filename)
	if os.IsNotExist(err) {
		return false
	}

	return err == nil && !info.IsDir()
}
