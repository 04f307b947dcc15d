package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dchest/safefile"
	"github.com/google/uuid"
	"github.com/gravwell/gcfg"
)

const maxConfigSize int64 = 4 * 1024 * 1024

var (
	ErrConfigFileTooLarge = errors.New("config file is too large")
	ErrFailedFileRead     = errors.New("failed to read entire config file")
)

const uuidParam = `Forwarder-UUID`

// LoadConfigFile opens, size-checks, and parses the ini-style config file
// at p into v, the same read-then-parse shape as gravwell's
// config.LoadConfigFile.
func LoadConfigFile(v interface{}, p string) (err error) {
	var fin *os.File
	var fi os.FileInfo
	if fin, err = os.Open(p); err != nil {
		return
	}
	defer fin.Close()
	if fi, err = fin.Stat(); err != nil {
		return
	} else if fi.Size() > maxConfigSize {
		return ErrConfigFileTooLarge
	}
	bb := bytes.NewBuffer(nil)
	n, err := io.Copy(bb, fin)
	if err != nil {
		return err
	} else if n != fi.Size() {
		return ErrFailedFileRead
	}
	return LoadConfigBytes(v, bb.Bytes())
}

// LoadConfigBytes parses the ini-style contents of b into v.
func LoadConfigBytes(v interface{}, b []byte) error {
	if int64(len(b)) > maxConfigSize {
		return ErrConfigFileTooLarge
	}
	return gcfg.ReadStringInto(v, string(b))
}

// SetForwarderUUID rewrites the Forwarder-UUID parameter into the config
// file at loc, atomically, and updates g in place. This is the one piece
// of configuration *identity* metisd persists across restarts (spec §6.7):
// a forwarder that started without an instance id keeps the one it
// generates on its first run.
func (g *Global) SetForwarderUUID(id uuid.UUID, loc string) error {
	if id == (uuid.UUID{}) {
		return errors.New("UUID is empty")
	}
	content, err := os.ReadFile(loc)
	if err != nil {
		return err
	}
	lines := strings.Split(string(content), "\n")
	lo := findParamLine(lines, uuidParam)
	if lo == -1 {
		gStart, ok := globalSectionStart(lines)
		if !ok {
			return ErrGlobalSectionMissing
		}
		lines = insertLine(lines, fmt.Sprintf(`%s="%s"`, uuidParam, id.String()), gStart+1)
	} else {
		lines[lo] = fmt.Sprintf(`%s="%s"`, uuidParam, id.String())
	}
	if err := safefile.WriteFile(loc, []byte(strings.Join(lines, "\n")), 0644); err != nil {
		return err
	}
	g.Forwarder_UUID = id.String()
	return nil
}

func findParamLine(lines []string, param string) int {
	p := strings.ToLower(strings.TrimSpace(param))
	for i, l := range lines {
		if strings.HasPrefix(strings.ToLower(strings.TrimSpace(l)), p) {
			return i
		}
	}
	return -1
}

func globalSectionStart(lines []string) (int, bool) {
	for i, l := range lines {
		if strings.ToLower(strings.TrimSpace(l)) == `[global]` {
			return i, true
		}
	}
	return -1, false
}

func insertLine(lines []string, line string, at int) []string {
	if at < 0 || at > len(lines) {
		return append(lines, line)
	}
	out := make([]string, 0, len(lines)+1)
	out = append(out, lines[:at]...)
	out = append(out, line)
	out = append(out, lines[at:]...)
	return out
}
