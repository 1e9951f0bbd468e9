package archive

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/parquet-go/parquet-go"

	"github.com/askwarehouse/askwarehouse/internal/ask"
)

type EncodeResult struct {
	Data        []byte
	RecordCount int64
}

// answerRow flattens an answer to one row per result row. Statements that
// returned nothing keep a row with RowIndex -1; a text-only answer is a
// single row with QueryIndex -1.
type answerRow struct {
	AnswerID      string `parquet:"answer_id"`
	TraceID       string `parquet:"trace_id"`
	AskedAtUnixMs int64  `parquet:"asked_at_unix_ms"`
	Question      string `parquet:"question"`
	Text          string `parquet:"text"`
	QueryIndex    int32  `parquet:"query_index"`
	SQL           string `parquet:"sql"`
	RowIndex      int32  `parquet:"row_index"`
	RowJSON       string `parquet:"row_json"`
}

func EncodeAnswer(answerID string, record ask.Record) (EncodeResult, error) {
	response := record.Response
	if len(response.Results) != len(response.SQLQueries) {
		return EncodeResult{}, fmt.Errorf("answer has %d statements but %d results", len(response.SQLQueries), len(response.Results))
	}

	base := answerRow{
		AnswerID:      answerID,
		TraceID:       record.TraceID,
		AskedAtUnixMs: record.AskedAt.UnixMilli(),
		Question:      record.Question,
		Text:          response.Text,
		QueryIndex:    -1,
		RowIndex:      -1,
	}

	rows := make([]answerRow, 0, 1)
	for queryIndex, statement := range response.SQLQueries {
		queryRow := base
		queryRow.QueryIndex = int32(queryIndex)
		queryRow.SQL = statement

		if len(response.Results[queryIndex]) == 0 {
			rows = append(rows, queryRow)
			continue
		}
		for rowIndex, result := range response.Results[queryIndex] {
			payload, err := json.Marshal(result)
			if err != nil {
				return EncodeResult{}, fmt.Errorf("marshal result row %d of statement %d: %w", rowIndex, queryIndex, err)
			}
			row := queryRow
			row.RowIndex = int32(rowIndex)
			row.RowJSON = string(payload)
			rows = append(rows, row)
		}
	}
	if len(rows) == 0 {
		rows = append(rows, base)
	}

	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[answerRow](buf)
	if _, err := writer.Write(rows); err != nil {
		return EncodeResult{}, fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return EncodeResult{}, fmt.Errorf("close parquet writer: %w", err)
	}

	return EncodeResult{Data: buf.Bytes(), RecordCount: int64(len(rows))}, nil
}
