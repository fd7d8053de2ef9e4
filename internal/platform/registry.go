package platform

import (
	"fmt"
	"sort"
	"sync"

	"sales_ledger_v1/internal/model"
)

// Factory 按接入参数构造一个新的适配器实例
type Factory func(opts Options) Adapter

// Registry 平台名 -> 适配器工厂 + 接入参数
// 只保存构造方法，不保存任何客户端实例
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	options   map[string]Options
}

// NewRegistry 创建注册表并登记内置平台
func NewRegistry(options map[string]Options) *Registry {
	r := &Registry{
		factories: map[string]Factory{},
		options:   map[string]Options{},
	}
	for name, opts := range options {
		r.options[name] = opts
	}

	r.Register(model.PlatformEtsy, NewEtsyAdapter)
	r.Register(model.PlatformShopify, NewShopifyAdapter)
	r.Register(model.PlatformEbay, NewEbayAdapter)
	r.Register(model.PlatformWooCommerce, NewWooCommerceAdapter)
	return r
}

// Register 登记（或替换）一个平台
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// New 为一次同步构造新的适配器
func (r *Registry) New(name string) (Adapter, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	opts := r.options[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPlatform, name)
	}
	return f(opts), nil
}

// Options 平台接入参数
func (r *Registry) Options(name string) Options {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.options[name]
}

// Names 已登记的平台
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
