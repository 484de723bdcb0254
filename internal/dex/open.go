package dex

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strconv"

	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/stream"
)

// APK 中的主 DEX 与 multidex：classes.dex, classes2.dex, ...
var dexEntryPattern = regexp.MustCompile(`^classes(\d*)\.dex$`)

var zipMagic = []byte("PK\x03\x04")

// Loader 加载 DEX / APK 文件
type Loader struct {
	logger      *logrus.Logger
	concurrency int
}

// NewLoader 创建加载器，concurrency <= 0 时为 4
func NewLoader(logger *logrus.Logger, concurrency int) *Loader {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Loader{logger: logger, concurrency: concurrency}
}

// Open 读取 .dex 文件或 APK/ZIP（按文件头判断），返回对应的运行时
func (l *Loader) Open(path string) (*Runtime, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if bytes.HasPrefix(data, zipMagic) {
		files, err := l.ReadArchive(bytes.NewReader(data), int64(len(data)))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return NewRuntime(files...), nil
	}

	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	f.Name = path
	return NewRuntime(f), nil
}

type dexEntry struct {
	file  *zip.File
	index int
}

// ReadArchive 并发解析压缩包中的所有 classesN.dex，结果按 N 排序
// 单个 DEX 损坏时记录警告并跳过，全部失败才返回错误
func (l *Loader) ReadArchive(r io.ReaderAt, size int64) ([]*File, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}

	var entries []dexEntry
	for _, zf := range zr.File {
		m := dexEntryPattern.FindStringSubmatch(zf.Name)
		if m == nil {
			continue
		}
		index := 1
		if m[1] != "" {
			if index, err = strconv.Atoi(m[1]); err != nil {
				continue
			}
		}
		entries = append(entries, dexEntry{file: zf, index: index})
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("no classes*.dex entries in archive")
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].index < entries[j].index })

	files := make([]*File, 0, len(entries))
	s := stream.New().WithMaxGoroutines(l.concurrency)
	for _, e := range entries {
		e := e
		s.Go(func() stream.Callback {
			f, err := readEntry(e.file)
			return func() {
				if err != nil {
					l.logger.WithError(err).WithField("entry", e.file.Name).Warn("Skipping unreadable dex entry")
					return
				}
				files = append(files, f)
			}
		})
	}
	s.Wait()

	if len(files) == 0 {
		return nil, fmt.Errorf("none of %d dex entries could be parsed", len(entries))
	}

	l.logger.WithFields(logrus.Fields{
		"entries": len(entries),
		"parsed":  len(files),
	}).Debug("Loaded dex files from archive")

	return files, nil
}

func readEntry(zf *zip.File) (*File, error) {
	rc, err := zf.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, err
	}
	f, err := Parse(data)
	if err != nil {
		return nil, err
	}
	f.Name = zf.Name
	return f, nil
}
