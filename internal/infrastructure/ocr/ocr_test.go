package ocr

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/garyjia/claim-intake/internal/application/port"
	"github.com/otiai10/gosseract/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockRecognizer struct {
	mock.Mock
}

func (m *mockRecognizer) Recognize(ctx context.Context, data []byte, mediaType string) (*port.Recognition, error) {
	args := m.Called(ctx, data, mediaType)
	rec, _ := args.Get(0).(*port.Recognition)
	return rec, args.Error(1)
}

// buildPDF writes a minimal single-font PDF. An empty line list produces a
// page without a text layer.
func buildPDF(pages ...[]string) []byte {
	var objects []string
	kids := ""
	for i := range pages {
		kids += fmt.Sprintf("%d 0 R ", 4+2*i)
	}

	objects = append(objects,
		"<< /Type /Catalog /Pages 2 0 R >>",
		fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", kids, len(pages)),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>",
	)
	for i, lines := range pages {
		var content bytes.Buffer
		if len(lines) > 0 {
			content.WriteString("BT /F1 12 Tf 72 720 Td 14 TL\n")
			for _, l := range lines {
				fmt.Fprintf(&content, "(%s) Tj T*\n", l)
			}
			content.WriteString("ET")
		}
		objects = append(objects,
			fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>", 5+2*i),
			fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", content.Len(), content.String()),
		)
	}

	var out bytes.Buffer
	out.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = out.Len()
		fmt.Fprintf(&out, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := out.Len()
	fmt.Fprintf(&out, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&out, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&out, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return out.Bytes()
}

func TestRouter_Dispatch(t *testing.T) {
	pdf := new(mockRecognizer)
	img := new(mockRecognizer)
	ctx := context.Background()

	pdf.On("Recognize", ctx, []byte("p"), MediaTypePDF).Return(&port.Recognition{Method: "pdf"}, nil)
	img.On("Recognize", ctx, []byte("i"), "image/png").Return(&port.Recognition{Method: "img"}, nil)

	r := NewRouter(pdf, img, NewPlainTextRecognizer(), zap.NewNop())

	rec, err := r.Recognize(ctx, []byte("p"), MediaTypePDF)
	require.NoError(t, err)
	assert.Equal(t, "pdf", rec.Method)

	rec, err = r.Recognize(ctx, []byte("i"), "image/png")
	require.NoError(t, err)
	assert.Equal(t, "img", rec.Method)

	rec, err = r.Recognize(ctx, []byte("hello"), "text/plain")
	require.NoError(t, err)
	assert.Equal(t, MethodPlainText, rec.Method)

	_, err = r.Recognize(ctx, []byte("x"), "application/zip")
	assert.ErrorIs(t, err, port.ErrUnsupportedFormat)

	pdf.AssertExpectations(t)
	img.AssertExpectations(t)
}

func TestRouter_MissingRecognizer(t *testing.T) {
	r := NewRouter(nil, nil, nil, zap.NewNop())
	for _, mt := range []string{MediaTypePDF, "image/jpeg", "text/plain"} {
		_, err := r.Recognize(context.Background(), []byte("x"), mt)
		assert.ErrorIs(t, err, port.ErrUnsupportedFormat, mt)
	}
}

func TestPlainTextRecognizer(t *testing.T) {
	p := NewPlainTextRecognizer()
	ctx := context.Background()

	rec, err := p.Recognize(ctx, []byte("Claimant: Jane Doe"), "text/plain")
	require.NoError(t, err)
	assert.Equal(t, "Claimant: Jane Doe", rec.Text)
	assert.Equal(t, 1.0, rec.Confidence)
	assert.Equal(t, 1, rec.Pages)

	rec, err = p.Recognize(ctx, []byte("ab\xffcd"), "text/plain")
	require.NoError(t, err)
	assert.Equal(t, "ab�cd", rec.Text)
	assert.InDelta(t, 0.8, rec.Confidence, 1e-9)

	_, err = p.Recognize(ctx, []byte("x"), "image/png")
	assert.ErrorIs(t, err, port.ErrUnsupportedFormat)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = p.Recognize(cancelled, []byte("x"), "text/plain")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWordRegions(t *testing.T) {
	regions, mean := wordRegions([]gosseract.BoundingBox{
		{Word: "Claim", Confidence: 90},
		{Word: "  ", Confidence: 10},
		{Word: "amount", Confidence: 70},
	})
	require.Len(t, regions, 2)
	assert.Equal(t, port.Region{Text: "Claim", Confidence: 0.9}, regions[0])
	assert.InDelta(t, 0.8, mean, 1e-9)

	regions, mean = wordRegions(nil)
	assert.Empty(t, regions)
	assert.Equal(t, 0.0, mean)
}

func TestTesseractRecognizer_RejectsNonImage(t *testing.T) {
	tr := NewTesseractRecognizer(nil, zap.NewNop())
	_, err := tr.Recognize(context.Background(), []byte("%PDF"), MediaTypePDF)
	assert.ErrorIs(t, err, port.ErrUnsupportedFormat)
}

func TestFitzRecognizer_TextLayer(t *testing.T) {
	fallback := new(mockRecognizer)
	f := NewFitzRecognizer(fallback, FitzOptions{}, zap.NewNop())

	data := buildPDF([]string{"Claimant: Jane Doe", "Amount: 800.00"})
	rec, err := f.Recognize(context.Background(), data, MediaTypePDF)
	require.NoError(t, err)

	assert.Equal(t, 1, rec.Pages)
	assert.Equal(t, MethodPDFText, rec.Method)
	assert.Contains(t, rec.Text, "Jane Doe")
	assert.Contains(t, rec.Text, "800.00")
	require.Len(t, rec.Regions, 1)
	assert.Equal(t, pdfTextConfidence, rec.Regions[0].Confidence)

	fallback.AssertNotCalled(t, "Recognize", mock.Anything, mock.Anything, mock.Anything)
}

func TestFitzRecognizer_RendersPagesWithoutText(t *testing.T) {
	fallback := new(mockRecognizer)
	fallback.On("Recognize", mock.Anything, mock.Anything, "image/jpeg").
		Return(&port.Recognition{
			Text:    "scanned page",
			Method:  MethodTesseract,
			Regions: []port.Region{{Text: "scanned", Confidence: 0.7}, {Text: "page", Confidence: 0.5}},
		}, nil).Once()

	f := NewFitzRecognizer(fallback, FitzOptions{RenderDPI: 36}, zap.NewNop())

	data := buildPDF([]string{"Policy: POL-123456"}, nil)
	rec, err := f.Recognize(context.Background(), data, MediaTypePDF)
	require.NoError(t, err)

	assert.Equal(t, 2, rec.Pages)
	assert.Equal(t, MethodPDFText+"+"+MethodTesseract, rec.Method)
	assert.Contains(t, rec.Text, "POL-123456")
	assert.Contains(t, rec.Text, "scanned page")
	assert.Len(t, rec.Regions, 3)
	fallback.AssertExpectations(t)
}

func TestFitzRecognizer_Errors(t *testing.T) {
	f := NewFitzRecognizer(nil, FitzOptions{}, zap.NewNop())
	ctx := context.Background()

	_, err := f.Recognize(ctx, []byte("plain"), "text/plain")
	assert.ErrorIs(t, err, port.ErrUnsupportedFormat)

	_, err = f.Recognize(ctx, []byte("definitely not a pdf"), MediaTypePDF)
	assert.Error(t, err)

	// blank page with no fallback yields no text
	rec, err := f.Recognize(ctx, buildPDF(nil), MediaTypePDF)
	require.NoError(t, err)
	assert.Empty(t, rec.Text)
	assert.Empty(t, rec.Regions)
}
