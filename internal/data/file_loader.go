package data

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/opsxjacky/cash-rebalancer/pkg/types"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// ErrUnsupportedFormat 不支持的文件格式
var ErrUnsupportedFormat = errors.New("unsupported account file format")

const tagSymbolRequired = "required_for_non_cash"

// FileLoader 从文件加载账户，按扩展名选择 JSON / YAML / TOML
type FileLoader struct {
	validate *validator.Validate
}

// NewFileLoader 创建文件加载器
func NewFileLoader() *FileLoader {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterStructValidation(validateHoldingRecord, types.HoldingRecord{})
	return &FileLoader{validate: v}
}

// validateHoldingRecord 非现金持仓必须有 symbol
func validateHoldingRecord(sl validator.StructLevel) {
	rec := sl.Current().Interface().(types.HoldingRecord)
	if rec.Symbol == "" && !rec.IsCash() {
		sl.ReportError(rec.Symbol, "Symbol", "Symbol", tagSymbolRequired, "")
	}
}

// Formats 支持的文件扩展名
func (l *FileLoader) Formats() []string {
	return []string{".json", ".yaml", ".yml", ".toml"}
}

// Load 加载账户
// 账户名默认取文件名
func (l *FileLoader) Load(path string) (*types.Account, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read account file: %w", err)
	}

	account, err := l.Parse(filepath.Ext(path), raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if account.Name == "" {
		account.Name = filepath.Base(path)
	}
	return account, nil
}

// Parse 解析并校验账户内容
func (l *FileLoader) Parse(ext string, raw []byte) (*types.Account, error) {
	var account types.Account
	switch strings.ToLower(ext) {
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&account); err != nil {
			return nil, fmt.Errorf("failed to parse JSON: %w", err)
		}
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(raw))
		dec.KnownFields(true)
		if err := dec.Decode(&account); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	case ".toml":
		dec := toml.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&account); err != nil {
			return nil, fmt.Errorf("failed to parse TOML: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}

	if err := l.validate.Struct(&account); err != nil {
		return nil, fmt.Errorf("invalid account: %w", describe(err))
	}
	return &account, nil
}

// describe 把校验错误整理成一行
func describe(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required_without", "excluded_with":
			parts = append(parts, fmt.Sprintf("%s: exactly one of type or composition is required", fe.Namespace()))
		case tagSymbolRequired:
			parts = append(parts, fmt.Sprintf("%s: symbol is required for non-cash holdings", fe.Namespace()))
		default:
			parts = append(parts, fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.Tag()))
		}
	}
	return fmt.Errorf("%w: %s", err, strings.Join(parts, "; "))
}
