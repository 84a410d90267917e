package statement

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Register_DuplicatePanics(t *testing.T) {
	r := NewRegistry()
	r.Register(&DelimitedParser{})
	assert.Panics(t, func() {
		r.Register(&DelimitedParser{})
	})
}

func TestRegistry_Get(t *testing.T) {
	r := DefaultRegistry()

	assert.NotNil(t, r.Get("csv"))
	assert.NotNil(t, r.Get("CSV")) // case-insensitive
	assert.NotNil(t, r.Get("lloyds"))
	assert.NotNil(t, r.Get("coop"))
	assert.NotNil(t, r.Get("camt053"))
	assert.Nil(t, r.Get("ofx"))
}

func TestRegistry_Formats(t *testing.T) {
	r := DefaultRegistry()
	assert.ElementsMatch(t, []string{"csv", "lloyds", "coop", "camt053"}, r.Formats())
}

func TestRegistry_Detect(t *testing.T) {
	r := DefaultRegistry()

	tests := []struct {
		name string
		data string
		want string
	}{
		{
			name: "generic csv",
			data: "Date,Amount,Reference\n2024-01-15,-42.50,COFFEE\n",
			want: "csv",
		},
		{
			name: "generic csv with debit credit columns",
			data: "Date,Debit,Credit,Description\n2024-01-15,42.50,,COFFEE\n",
			want: "csv",
		},
		{
			name: "generic csv with credit column only",
			data: "Date,Credit,Description\n2024-01-15,42.50,REFUND\n",
			want: "csv",
		},
		{
			name: "generic csv with money in column only",
			data: "Date,Money In,Description\n2024-01-15,42.50,REFUND\n",
			want: "csv",
		},
		{
			name: "lloyds header",
			data: "Transaction Date,Transaction Type,Sort Code,Account Number,Transaction Description,Debit Amount,Credit Amount,Balance\n",
			want: "lloyds",
		},
		{
			name: "coop header",
			data: "Date,Description,Reference,Money In,Money Out,Balance\n",
			want: "coop",
		},
		{
			name: "camt053 xml",
			data: `<?xml version="1.0"?><Document><BkToCstmrStmt><Stmt></Stmt></BkToCstmrStmt></Document>`,
			want: "camt053",
		},
		{
			name: "camt053 with UTF-8 BOM",
			data: "\xef\xbb\xbf<Document><BkToCstmrStmt></BkToCstmrStmt></Document>",
			want: "camt053",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Detect([]byte(tt.data))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRegistry_Detect_Unrecognized(t *testing.T) {
	r := DefaultRegistry()

	t.Run("empty file", func(t *testing.T) {
		_, err := r.Detect([]byte("   \n"))
		var detectErr *FormatDetectionError
		require.ErrorAs(t, err, &detectErr)
	})

	t.Run("non-statement xml", func(t *testing.T) {
		_, err := r.Detect([]byte("<html><body>not a statement</body></html>"))
		var detectErr *FormatDetectionError
		require.ErrorAs(t, err, &detectErr)
	})

	t.Run("random text", func(t *testing.T) {
		_, err := r.Detect([]byte("hello world\nthis is not a statement\n"))
		var detectErr *FormatDetectionError
		require.ErrorAs(t, err, &detectErr)
	})
}

func TestRegistry_Parse_HintOverridesDetection(t *testing.T) {
	r := DefaultRegistry()

	// A file whose header would detect as generic csv, parsed with an
	// explicit hint for the same format.
	data := []byte("Date,Amount,Reference\n2024-01-15,-42.50,COFFEE\n")

	preview, err := r.Parse(data, "csv")
	require.NoError(t, err)
	assert.Equal(t, "csv", preview.Format)
	assert.Equal(t, 1, preview.Count)
}

func TestRegistry_Parse_UnknownHint(t *testing.T) {
	r := DefaultRegistry()
	_, err := r.Parse([]byte("anything"), "qif")
	var detectErr *FormatDetectionError
	require.ErrorAs(t, err, &detectErr)
	assert.Contains(t, err.Error(), "qif")
}

func TestRegistry_Parse_AutoDetects(t *testing.T) {
	r := DefaultRegistry()
	data := []byte("Date,Description,Reference,Money In,Money Out,Balance\n" +
		`"15/01/2024","ACME LTD","INV-1042","250.00","","1250.00"` + "\n")

	preview, err := r.Parse(data, "")
	require.NoError(t, err)
	assert.Equal(t, "coop", preview.Format)
}
