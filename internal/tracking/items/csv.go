package items

import (
	"bytes"
	"context"
	"encoding/csv"
	"strconv"

	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"
)

// ExportCSV は現在のフィルタ結果を cp932 の CSV にする。
// 社内の台帳取り込み先（Excel前提）が Shift_JIS しか読めないため。
func (s *Service) ExportCSV(ctx context.Context, f ListFilter) ([]byte, error) {
	list, err := s.List(ctx, f)
	if err != nil {
		return nil, err
	}
	return encodeCSV(list)
}

func encodeCSV(list []ListedItem) ([]byte, error) {
	var b bytes.Buffer
	enc := japanese.ShiftJIS.NewEncoder()
	w := csv.NewWriter(transform.NewWriter(&b, enc))

	header := []string{"id", "name", "category", "storage", "quantity", "live_count", "manager", "status"}
	if err := w.Write(header); err != nil {
		return nil, err
	}
	for _, it := range list {
		record := []string{
			strconv.FormatInt(it.ID, 10),
			it.Name,
			it.Category,
			it.Storage,
			strconv.Itoa(it.Quantity),
			strconv.Itoa(it.LiveCount),
			it.Manager,
			string(it.Status),
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}
