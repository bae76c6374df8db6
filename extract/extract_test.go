package extract

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
)

const sample = `IPK,ReceiptNo,ID,TermID,Amount,NetAmount,NetDiscount,Notes,PmtType,Deleted
1,R1,S1,2019-T1,100,100,0,,Cash,0
2,R2,S2,2019-T1,200,150,50,pay only $150,Cash,1
3,R3,S3,2019-T2,300,300,0,"staff 10%, late fee $5",Transfer,
4,R4,S4,,400,400,0,,Cash,false
`

func TestReadDelimited_FiltersDeletedAndKeepsOrder(t *testing.T) {
	res, err := ReadDelimited(strings.NewReader(sample), Options{})
	if err != nil {
		t.Fatalf("ReadDelimited: %v", err)
	}
	if res.TotalRows != 4 || res.DeletedRows != 1 || len(res.Records) != 3 {
		t.Fatalf("unexpected stats: total=%d deleted=%d kept=%d", res.TotalRows, res.DeletedRows, len(res.Records))
	}
	for i, rec := range res.Records {
		if rec.Position != i {
			t.Fatalf("record %d has position %d", i, rec.Position)
		}
		if want := []int{2, 4, 5}[i]; rec.SourceRow != want {
			t.Fatalf("record %d: expected source row %d, got %d", i, want, rec.SourceRow)
		}
	}
	if res.Records[1].IPK != "3" || res.Records[1].Notes != "staff 10%, late fee $5" {
		t.Fatalf("unexpected record: %+v", res.Records[1])
	}
	if res.Records[2].HasTerm() {
		t.Fatalf("record 4 should have no term")
	}
}

func TestReadDelimited_TermFilter(t *testing.T) {
	res, err := ReadDelimited(strings.NewReader(sample), Options{TermFilter: "2019-T1"})
	if err != nil {
		t.Fatalf("ReadDelimited: %v", err)
	}
	if len(res.Records) != 1 || res.Records[0].IPK != "1" {
		t.Fatalf("expected only IPK 1, got %+v", res.Records)
	}
	if res.FilteredRows != 2 {
		t.Fatalf("expected 2 filtered rows, got %d", res.FilteredRows)
	}

	// the source row does not depend on the filter
	res, err = ReadDelimited(strings.NewReader(sample), Options{TermFilter: "2019-T2"})
	if err != nil {
		t.Fatalf("ReadDelimited: %v", err)
	}
	if len(res.Records) != 1 || res.Records[0].Position != 0 || res.Records[0].SourceRow != 4 {
		t.Fatalf("expected IPK 3 at position 0 from line 4, got %+v", res.Records)
	}
}

func TestReadDelimited_HeadersCaseInsensitiveAndPipe(t *testing.T) {
	in := "ipk|receipt_no|Student ID|term id|AMOUNT|notes\n9|R9|S9|T1|50.00|hello\n"
	res, err := ReadDelimited(strings.NewReader(in), Options{Delimiter: '|'})
	if err != nil {
		t.Fatalf("ReadDelimited: %v", err)
	}
	rec := res.Records[0]
	if rec.IPK != "9" || rec.ReceiptNo != "R9" || rec.StudentID != "S9" || rec.TermID != "T1" || rec.Amount != "50.00" || rec.Notes != "hello" {
		t.Fatalf("unexpected record: %+v", rec)
	}
}

func TestReadDelimited_MissingColumns(t *testing.T) {
	_, err := ReadDelimited(strings.NewReader("IPK,Amount\n1,2\n"), Options{})
	if !errors.Is(err, ErrMissingColumns) {
		t.Fatalf("expected ErrMissingColumns, got %v", err)
	}
	if !strings.Contains(err.Error(), "receiptno") {
		t.Fatalf("error should name the missing column: %v", err)
	}
}

func TestLoad_Workbook(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	rows := [][]interface{}{
		{"IPK", "ReceiptNo", "ID", "TermID", "Amount", "Deleted"},
		{"1", "R1", "S1", "T1", "100", "0"},
		{"2", "R2", "S2", "T1", "100", "1"},
	}
	for i, row := range rows {
		cellName, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(sheet, cellName, &row); err != nil {
			t.Fatalf("SetSheetRow: %v", err)
		}
	}
	path := filepath.Join(t.TempDir(), "extract.xlsx")
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("SaveAs: %v", err)
	}

	res, err := Load(path, Options{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(res.Records) != 1 || res.Records[0].IPK != "1" {
		t.Fatalf("unexpected records: %+v", res.Records)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatalf("Write: %v", err)
	}
	res, err = ReadWorkbook(&buf, Options{})
	if err != nil || len(res.Records) != 1 {
		t.Fatalf("ReadWorkbook: %+v %v", res, err)
	}
}
