package report

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/AlexBil-rar/tg-bot-EMKA/internal/models"
)

type staticSource []models.Booking

func (s staticSource) ListBookings(_ context.Context) ([]models.Booking, error) {
	return s, nil
}

func TestExport(t *testing.T) {
	source := staticSource{
		{
			ID: "b1", UserID: 1, Name: "Анна", Phone: "79990000001",
			Branch: "Центральный", Date: "2030-06-03", Time: "14:00",
			CreatedAt: time.Date(2030, 6, 1, 10, 0, 0, 0, time.UTC),
		},
		{
			ID: "b2", UserID: 2, Name: "Борис", Phone: "79990000002",
			Branch: "Северный", Date: "2030-06-04", Time: "15:00",
			CreatedAt: time.Date(2030, 6, 1, 11, 0, 0, 0, time.UTC),
		},
	}

	logger := zerolog.New(io.Discard)
	exporter := NewExporter(source, t.TempDir(), &logger)

	path, err := exporter.Export(context.Background())
	require.NoError(t, err)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	assert.ElementsMatch(t, []string{"Центральный", "Северный"}, f.GetSheetList())

	header, err := f.GetCellValue("Центральный", "A1")
	require.NoError(t, err)
	assert.Equal(t, "Дата", header)

	name, err := f.GetCellValue("Центральный", "C2")
	require.NoError(t, err)
	assert.Equal(t, "Анна", name)

	phone, err := f.GetCellValue("Северный", "D2")
	require.NoError(t, err)
	assert.Equal(t, "79990000002", phone)
}

func TestSheetNameTruncation(t *testing.T) {
	long := "Очень длинное название филиала на проспекте"
	assert.Len(t, []rune(sheetName(long)), 31)
	assert.Equal(t, "Южный", sheetName("Южный"))
}
