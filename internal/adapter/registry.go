// internal/adapter/registry.go
package adapter

import (
	"fmt"
	"sort"

	"ContractSync/internal/config"
	"ContractSync/internal/interfaces"

	"github.com/sirupsen/logrus"
)

// ========== 全局工厂函数注册表 ==========
var factoryRegistry = make(map[string]interfaces.Factory)

// Register 供数据源包的 init 函数调用，注册工厂函数
func Register(name string, factory interfaces.Factory) {
	if factory == nil {
		panic(fmt.Sprintf("数据源%s的工厂函数不能为nil", name))
	}
	if _, exists := factoryRegistry[name]; exists {
		logrus.Warnf("数据源%s已注册，将覆盖原有实现", name)
	}
	factoryRegistry[name] = factory
}

// GetFactory 获取指定数据源的工厂函数
func GetFactory(name string) (interfaces.Factory, bool) {
	factory, ok := factoryRegistry[name]
	return factory, ok
}

// ListFactories 列出所有已注册的数据源
func ListFactories() []string {
	names := make([]string, 0, len(factoryRegistry))
	for n := range factoryRegistry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// NewSource 按配置中的 dump.source 创建数据源实例
func NewSource(cfg *config.Config, logger *logrus.Logger) (interfaces.RecordSource, error) {
	name := cfg.Dump.Source
	factory, ok := GetFactory(name)
	if !ok {
		return nil, fmt.Errorf("数据源%s未注册（已注册：%v）", name, ListFactories())
	}
	src, err := factory(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("初始化数据源%s失败: %w", name, err)
	}
	logger.WithField("source", src.GetName()).Info("数据源初始化成功")
	return src, nil
}
