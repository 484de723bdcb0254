package dex

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/apk-analysis/frida-enum/internal/catalog"
)

var errHandleDisposed = errors.New("class handle already disposed")

// Runtime 基于 DEX 文件的静态运行时
// 多个文件中定义了同名类时以先出现的为准，与类加载器的查找顺序一致
type Runtime struct {
	files []*File
}

var _ catalog.Runtime = (*Runtime)(nil)

// NewRuntime 创建运行时，files 的顺序即类加载顺序
func NewRuntime(files ...*File) *Runtime {
	return &Runtime{files: files}
}

// Files 返回运行时中的 DEX 文件
func (r *Runtime) Files() []*File {
	return r.files
}

// LoadedClasses 返回所有文件中定义的类描述符
func (r *Runtime) LoadedClasses(ctx context.Context) ([]string, error) {
	var out []string
	seen := make(map[string]struct{})
	for _, f := range r.files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, desc := range f.Classes() {
			if _, dup := seen[desc]; dup {
				continue
			}
			seen[desc] = struct{}{}
			out = append(out, desc)
		}
	}
	return out, nil
}

// Use 查找定义该类的文件，找不到时返回 catalog.ErrClassNotFound
func (r *Runtime) Use(ctx context.Context, name catalog.ClassName) (catalog.ClassHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	desc := name.Descriptor()
	for _, f := range r.files {
		if _, ok := f.findClassDef(desc); ok {
			return &classHandle{file: f, descriptor: desc}, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", catalog.ErrClassNotFound, name)
}

type classHandle struct {
	file       *File
	descriptor string
	disposed   atomic.Bool
}

func (h *classHandle) DeclaredMethods(ctx context.Context) ([]catalog.MethodDescriptor, error) {
	if h.disposed.Load() {
		return nil, errHandleDisposed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	methods, err := h.file.Methods(h.descriptor)
	if err != nil {
		return nil, err
	}
	out := make([]catalog.MethodDescriptor, len(methods))
	for i, m := range methods {
		out[i] = m
	}
	return out, nil
}

func (h *classHandle) Dispose() error {
	if !h.disposed.CompareAndSwap(false, true) {
		return errHandleDisposed
	}
	return nil
}
