package dataset

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/parquet-go/parquet-go"
	"go.uber.org/zap"

	"card-broker/internal/tradeopt"
)

const parquetExt = ".parquet"

func isParquet(path string) bool {
	return strings.EqualFold(filepath.Ext(path), parquetExt)
}

// LoadPriceDataset 读取 Parquet 价格数据。path 可以是单个文件，也可以是由多个分片文件组成的目录。
// 列按名称匹配，price 为空的行视为缺失，id 为空的行忽略；其它列忽略。
func (l *Loader) LoadPriceDataset(path string) (tradeopt.PriceTable, tradeopt.Catalog, error) {
	files, err := parquetFiles(path)
	if err != nil {
		return nil, nil, err
	}

	var records []priceRow
	for _, file := range files {
		rows, err := parquet.ReadFile[priceRow](file)
		if err != nil {
			return nil, nil, fmt.Errorf("dataset: 读取 Parquet 文件 %q 失败: %w", file, err)
		}
		records = append(records, rows...)
	}

	l.logger.Debug("Parquet 价格数据读取完成",
		zap.String("path", path),
		zap.Int("files", len(files)),
		zap.Int("rows", len(records)),
	)
	return l.alignPrices(records)
}

func parquetFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("dataset: 打开价格数据 %q 失败: %w", path, err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("dataset: 读取价格目录 %q 失败: %w", path, err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && isParquet(e.Name()) {
			files = append(files, filepath.Join(path, e.Name()))
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("dataset: 目录 %q 中没有 Parquet 文件", path)
	}
	sort.Strings(files)
	return files, nil
}
