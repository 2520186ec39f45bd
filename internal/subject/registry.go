// Package subject 维护聊天中出现过的发送者集合以及主发送者
package subject

import (
	"errors"
	"fmt"
	"slices"
)

var (
	// ErrUnknownSubject 引用了不存在的发送者
	ErrUnknownSubject = errors.New("unknown subject")
	// ErrEmptySubject 新名字为空
	ErrEmptySubject = errors.New("subject name must not be empty")
)

// UnknownSubjectError 带上具体的名字
type UnknownSubjectError struct {
	Name string
}

func (e *UnknownSubjectError) Error() string {
	return fmt.Sprintf("%v: %q", ErrUnknownSubject, e.Name)
}

func (e *UnknownSubjectError) Is(target error) bool {
	return target == ErrUnknownSubject
}

// Registry 发送者按首次出现的顺序保存。
// 未显式指定主发送者时，inferMain 为 true 则取第一个发送者
type Registry struct {
	subjects  []string
	main      string
	inferMain bool
}

// NewRegistry 从发送者序列构建，重复的名字只保留第一次
func NewRegistry(senders []string, inferMain bool) *Registry {
	r := &Registry{inferMain: inferMain}
	for _, s := range senders {
		if !slices.Contains(r.subjects, s) {
			r.subjects = append(r.subjects, s)
		}
	}
	return r
}

// Subjects 返回快照，调用方修改不影响注册表
func (r *Registry) Subjects() []string {
	return slices.Clone(r.subjects)
}

// Has 是否存在该发送者
func (r *Registry) Has(name string) bool {
	return slices.Contains(r.subjects, name)
}

// MainSubject 显式指定的主发送者，否则按规则推断；都没有时返回 false
func (r *Registry) MainSubject() (string, bool) {
	if r.main != "" {
		return r.main, true
	}
	if r.inferMain && len(r.subjects) > 0 {
		return r.subjects[0], true
	}
	return "", false
}

// Explicit 是否显式指定过主发送者
func (r *Registry) Explicit() bool {
	return r.main != ""
}

// SetMainSubject 名字不存在时返回 UnknownSubjectError，原值不变
func (r *Registry) SetMainSubject(name string) error {
	if !r.Has(name) {
		return &UnknownSubjectError{Name: name}
	}
	r.main = name
	return nil
}

// ValidateRename 只做检查，不修改任何状态
func (r *Registry) ValidateRename(old, new string) error {
	if !r.Has(old) {
		return &UnknownSubjectError{Name: old}
	}
	if new == "" {
		return ErrEmptySubject
	}
	return nil
}

// Rename 把 old 改名为 new。new 已存在时两者合并，保留靠前的位置
func (r *Registry) Rename(old, new string) error {
	if err := r.ValidateRename(old, new); err != nil {
		return err
	}
	if old == new {
		return nil
	}

	renamed := make([]string, 0, len(r.subjects))
	for _, s := range r.subjects {
		if s == old {
			s = new
		}
		if !slices.Contains(renamed, s) {
			renamed = append(renamed, s)
		}
	}
	r.subjects = renamed
	if r.main == old {
		r.main = new
	}
	return nil
}

// Clone 深拷贝
func (r *Registry) Clone() *Registry {
	return &Registry{
		subjects:  slices.Clone(r.subjects),
		main:      r.main,
		inferMain: r.inferMain,
	}
}
