// SPDX-FileCopyrightText: © 2025 Nfrastack <code@nfrastack.com>
//
// SPDX-License-Identifier: BSD-3-Clause

package log

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

const datePlaceholder = "{date}"

// dailyFile is an append-only file whose path may change with the day
type dailyFile struct {
	pattern string
	now     func() time.Time
	path    string
	file    *os.File
}

func (d *dailyFile) resolve() string {
	return strings.ReplaceAll(d.pattern, datePlaceholder, d.now().Format("2006-01-02"))
}

// current returns the file for today, reopening when the day rolled over
func (d *dailyFile) current() (*os.File, error) {
	path := d.resolve()
	if d.file != nil && path == d.path {
		return d.file, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	if d.file != nil {
		d.file.Close()
	}
	d.file = f
	d.path = path
	return f, nil
}

func (d *dailyFile) Close() error {
	if d.file == nil {
		return nil
	}
	err := d.file.Close()
	d.file = nil
	return err
}
