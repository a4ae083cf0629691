package ingest

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/Veraticus/digital-asset-harvester/internal/common"
	"github.com/Veraticus/digital-asset-harvester/internal/model"
)

// ReadMbox splits an mbox archive into messages. Messages that fail to
// parse are logged and skipped.
func ReadMbox(r io.Reader, source string, logger *slog.Logger) ([]model.RawEmail, error) {
	if logger == nil {
		logger = slog.Default()
	}

	br := bufio.NewReader(r)
	var (
		emails []model.RawEmail
		buf    bytes.Buffer
		index  int
		inMsg  bool
	)

	flush := func() {
		if !inMsg {
			return
		}
		index++
		email, err := ParseMessage(bytes.NewReader(buf.Bytes()), fmt.Sprintf("%s#%d", source, index))
		if err != nil {
			logger.Warn("Skipping unreadable message", "source", source, "index", index, "error", err)
		} else {
			emails = append(emails, email)
		}
		buf.Reset()
	}

	prevBlank := true
	for {
		line, err := br.ReadString('\n')
		if len(line) > 0 {
			trimmed := strings.TrimRight(line, "\r\n")
			switch {
			case strings.HasPrefix(line, "From ") && prevBlank:
				flush()
				inMsg = true
			case inMsg:
				// mboxrd quoting
				if strings.HasPrefix(trimmed, ">") && strings.HasPrefix(strings.TrimLeft(trimmed, ">"), "From ") {
					line = line[1:]
				}
				buf.WriteString(line)
			}
			prevBlank = trimmed == ""
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read mbox %s: %w", source, err)
		}
	}
	flush()
	return emails, nil
}

// ReadFile reads a single .eml file or an mbox archive, sniffing the
// format from the first line.
func ReadFile(path string, logger *slog.Logger) ([]model.RawEmail, error) {
	f, err := os.Open(path) //nolint:gosec // path supplied by the user
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	br := bufio.NewReader(f)
	head, _ := br.Peek(5)
	source := filepath.Base(path)

	switch {
	case string(head) == "From ":
		return ReadMbox(br, source, logger)
	case strings.EqualFold(filepath.Ext(path), ".eml"):
		email, err := ParseMessage(br, source)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return []model.RawEmail{email}, nil
	default:
		return nil, fmt.Errorf("%w: %s", common.ErrUnsupportedMail, path)
	}
}

// ReadPaths reads every file named, descending into directories. Files in
// directories that are not mail are skipped; explicitly named files must be
// readable.
func ReadPaths(paths []string, logger *slog.Logger) ([]model.RawEmail, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var emails []model.RawEmail
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", path, err)
		}

		if !info.IsDir() {
			batch, err := ReadFile(path, logger)
			if err != nil {
				return nil, err
			}
			emails = append(emails, batch...)
			continue
		}

		err = filepath.WalkDir(path, func(p string, d os.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if d.IsDir() {
				return nil
			}
			batch, err := ReadFile(p, logger)
			if errors.Is(err, common.ErrUnsupportedMail) {
				logger.Debug("Skipping non-mail file", "path", p)
				return nil
			}
			if err != nil {
				return err
			}
			emails = append(emails, batch...)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	if len(emails) == 0 {
		return nil, fmt.Errorf("%w in %s", common.ErrNoMessages, strings.Join(paths, ", "))
	}

	logger.Info("Loaded emails", "count", len(emails), "inputs", len(paths))
	return emails, nil
}
