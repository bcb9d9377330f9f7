package parser

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

type (
	//FileTail is the built-in follow-from-end tail provider, used when no
	//external tail command is configured. It emits the same ==> path <==
	//markers an external tail does when switching between files.
	FileTail struct {
		files   []string
		lines   chan string
		watcher *fsnotify.Watcher
		quit    chan struct{}

		offsets map[string]int64
		current string
	}
)

// NewFileTail opens every file, seeks to its end, and follows appends via
// fsnotify. Rotated files are reopened from the start on re-creation.
func NewFileTail(files []string) (*FileTail, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	t := &FileTail{
		files:   files,
		lines:   make(chan string, sourceBuffer),
		watcher: watcher,
		quit:    make(chan struct{}),
		offsets: make(map[string]int64),
	}

	for _, file := range files {
		info, err := os.Stat(file)
		if err != nil {
			watcher.Close()
			return nil, fmt.Errorf("cannot tail %s: %v", file, err)
		}
		t.offsets[file] = info.Size()
		// watch the directory so create events after rotation are seen
		if err := watcher.Add(filepath.Dir(file)); err != nil {
			watcher.Close()
			return nil, err
		}
	}

	go t.follow()
	return t, nil
}

func (t *FileTail) follow() {
	defer close(t.lines)
	defer t.watcher.Close()

	for {
		select {
		case <-t.quit:
			return
		case event, ok := <-t.watcher.Events:
			if !ok {
				return
			}
			path := filepath.Clean(event.Name)
			if _, tracked := t.offsets[path]; !tracked {
				continue
			}
			if event.Op&fsnotify.Create != 0 {
				// rotation: the new file starts from zero
				t.offsets[path] = 0
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				t.drain(path)
			}
		case err, ok := <-t.watcher.Errors:
			if !ok {
				return
			}
			log.WithField("source", t.Name()).Warn(err)
		}
	}
}

// drain reads every complete new line appended to path since the last
// offset, emitting a file marker first when the active file changes.
func (t *FileTail) drain(path string) {
	file, err := os.Open(path)
	if err != nil {
		return
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return
	}
	offset := t.offsets[path]
	if info.Size() < offset {
		// truncated in place
		offset = 0
	}
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return
	}

	reader := bufio.NewReader(file)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			// hold the partial line until the rest arrives
			t.offsets[path] = offset
			return
		}
		offset += int64(len(line))
		t.offsets[path] = offset

		if t.current != path && len(t.files) > 1 {
			// match the external tail header format: marker plus the blank
			// line readers are expected to consume after it
			t.emit(fmt.Sprintf("==> %s <==", path))
			t.emit("")
		}
		t.current = path
		t.emit(trimEOL(line))
	}
}

func (t *FileTail) emit(line string) {
	select {
	case t.lines <- line:
	case <-t.quit:
	}
}

func trimEOL(line string) string {
	for len(line) > 0 && (line[len(line)-1] == '\n' || line[len(line)-1] == '\r') {
		line = line[:len(line)-1]
	}
	return line
}

func (t *FileTail) Lines() <-chan string { return t.lines }

func (t *FileTail) Stop() {
	select {
	case <-t.quit:
	default:
		close(t.quit)
	}
}

func (t *FileTail) Name() string { return "filetail" }
