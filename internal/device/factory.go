package device

import (
	"fmt"
)

// 下流要素の種別名。検出されたデバイスから作る要素はこのどちらかになる
const (
	// ElementKindSource はキャプチャ用要素の種別名
	ElementKindSource = "v4l2src"
	// ElementKindSink は出力用要素の種別名
	ElementKindSink = "v4l2sink"
)

// Element は下流のメディアフレームワークへ渡す要素ハンドルを表す。
// パイプラインそのものではなく、要素の種別とプロパティの記述
type Element struct {
	Kind       string            // 要素の種別名
	Name       string            // 要素のインスタンス名
	Properties map[string]string // 要素に設定するプロパティ
}

// ElementCreator は要素作成関数の型
type ElementCreator func(dev *Device, name string) (*Element, error)

// ElementFactory はデバイスレコードから下流要素を作成するファクトリー
type ElementFactory interface {
	CreateElement(dev *Device, name string) (*Element, error)
	SupportedTypes() []Type
}

// DefaultElementFactory は標準実装
type DefaultElementFactory struct {
	creators map[Type]ElementCreator
}

// NewElementFactory は新しいファクトリーを作成する
func NewElementFactory() ElementFactory {
	factory := &DefaultElementFactory{
		creators: make(map[Type]ElementCreator),
	}

	// キャプチャデバイス用の作成関数を登録
	factory.Register(TypeSource, newElementCreator(ElementKindSource))

	// 出力デバイス用の作成関数を登録
	factory.Register(TypeSink, newElementCreator(ElementKindSink))

	return factory
}

// Register は要素作成関数を登録する
func (f *DefaultElementFactory) Register(typ Type, creator ElementCreator) {
	f.creators[typ] = creator
}

// CreateElement はレコードの分類に応じた要素を作成する。作成された要素の
// device プロパティにはレコードのデバイスパスが設定される
func (f *DefaultElementFactory) CreateElement(dev *Device, name string) (*Element, error) {
	if dev == nil {
		return nil, fmt.Errorf("デバイスレコードが必要です")
	}

	creator, exists := f.creators[dev.Type]
	if !exists {
		return nil, fmt.Errorf("サポートされていないデバイス分類: %s", dev.Type)
	}

	return creator(dev, name)
}

// SupportedTypes はサポートされている分類を返す
func (f *DefaultElementFactory) SupportedTypes() []Type {
	types := make([]Type, 0, len(f.creators))
	for typ := range f.creators {
		types = append(types, typ)
	}
	return types
}

// newElementCreator は種別名を固定した作成関数を返す
func newElementCreator(kind string) ElementCreator {
	return func(dev *Device, name string) (*Element, error) {
		if name == "" {
			name = dev.Name
		}
		return &Element{
			Kind: kind,
			Name: name,
			Properties: map[string]string{
				"device": dev.Path,
			},
		}, nil
	}
}
