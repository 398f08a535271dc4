// Copyright 2026 The SimpleX Bot Authors
// SPDX-License-Identifier: Apache-2.0

package files

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/stephenmkbrady/simplex-bot/message"
)

// xftpEvent is the subset of an rcvFileDescrReady payload the
// download path needs.
type xftpEvent struct {
	RcvFileDescr struct {
		FileDescrText string `json:"fileDescrText"`
	} `json:"rcvFileDescr"`
	ChatItem json.RawMessage `json:"chatItem"`
}

// Available reports whether the xftp CLI can be found. When it
// cannot, transfers degrade to acknowledgement only.
func (m *Manager) Available() bool {
	_, err := exec.LookPath(m.xftpCommand)
	return err == nil
}

// ReceiveXFTP downloads a file from its XFTP description text. The
// description is written to a temp session directory, the xftp CLI
// fetches into it, and the single downloaded file is returned still
// inside the session directory; callers move it into place with
// Store and then CleanupSession. The session directory lives under
// the media root, so Store's rename never crosses a filesystem
// boundary.
func (m *Manager) ReceiveXFTP(ctx context.Context, descriptionText string) (string, error) {
	if err := os.MkdirAll(m.root, 0755); err != nil {
		return "", fmt.Errorf("files: creating %s: %w", m.root, err)
	}
	session, err := os.MkdirTemp(m.root, ".xftp-recv-*")
	if err != nil {
		return "", fmt.Errorf("files: creating session dir: %w", err)
	}

	descriptionPath := filepath.Join(session, "file.descr")
	if err := os.WriteFile(descriptionPath, []byte(descriptionText), 0600); err != nil {
		os.RemoveAll(session)
		return "", fmt.Errorf("files: writing description: %w", err)
	}

	downloadDir := filepath.Join(session, "download")
	if err := os.MkdirAll(downloadDir, 0755); err != nil {
		os.RemoveAll(session)
		return "", fmt.Errorf("files: creating download dir: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, m.xftpTimeout)
	defer cancel()

	command := exec.CommandContext(runCtx, m.xftpCommand, "recv", descriptionPath, downloadDir)
	output, err := command.CombinedOutput()
	if err != nil {
		os.RemoveAll(session)
		return "", fmt.Errorf("files: xftp recv failed: %w (output: %s)", err, output)
	}

	downloaded, err := singleFileIn(downloadDir)
	if err != nil {
		os.RemoveAll(session)
		return "", err
	}
	return downloaded, nil
}

// CleanupSession removes the temp session directory holding a
// downloaded file.
func (m *Manager) CleanupSession(downloadedPath string) {
	// downloadedPath is <session>/download/<file>.
	session := filepath.Dir(filepath.Dir(downloadedPath))
	if err := os.RemoveAll(session); err != nil {
		m.logger.Warn("session cleanup failed", "path", session, "error", err)
	}
}

// singleFileIn returns the one regular file in dir, verifying the
// download actually landed.
func singleFileIn(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("files: reading download dir: %w", err)
	}
	var found string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if found != "" {
			return "", fmt.Errorf("files: multiple files in download dir %s", dir)
		}
		found = filepath.Join(dir, entry.Name())
	}
	if found == "" {
		return "", fmt.Errorf("files: download produced no file in %s", dir)
	}
	return found, nil
}

// contactAndFile extracts the sending contact and file reference
// from the event's chat item.
func contactAndFile(raw json.RawMessage) (string, message.FileRef, error) {
	var envelope message.ChatItemEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return "", message.FileRef{}, fmt.Errorf("files: decoding chat item: %w", err)
	}
	context, err := message.Normalize(envelope)
	if err != nil {
		return "", message.FileRef{}, err
	}
	if context.File == nil {
		return "", message.FileRef{}, ErrNoFileName
	}
	return context.Sender, *context.File, nil
}

// HandleDescrReady processes an rcvFileDescrReady event: validate,
// download via xftp, and store. Returns the stored path, or "" when
// the transfer was skipped (no CLI available).
func (m *Manager) HandleDescrReady(ctx context.Context, payload json.RawMessage) (string, error) {
	var event xftpEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return "", fmt.Errorf("files: decoding descr event: %w", err)
	}
	if event.RcvFileDescr.FileDescrText == "" {
		return "", fmt.Errorf("files: descr event without description text")
	}

	contact, file, err := contactAndFile(event.ChatItem)
	if err != nil {
		return "", err
	}
	if err := m.Validate(file); err != nil {
		return "", err
	}

	if !m.Available() {
		m.logger.Warn("xftp CLI unavailable, acknowledging transfer without download",
			"file", file.FileName)
		return "", nil
	}

	downloaded, err := m.ReceiveXFTP(ctx, event.RcvFileDescr.FileDescrText)
	if err != nil {
		return "", err
	}
	stored, err := m.Store(contact, file, downloaded)
	m.CleanupSession(downloaded)
	if err != nil {
		return "", err
	}
	return stored, nil
}
