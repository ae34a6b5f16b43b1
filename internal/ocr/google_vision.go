package ocr

import (
	"context"
	"fmt"
	"image"
	"os"
	"strings"

	vision "cloud.google.com/go/vision/v2/apiv1"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"

	"docredact/internal/logger"
)

// VisionEngine implements Engine using Google Cloud Vision document text detection.
type VisionEngine struct {
	client  *vision.ImageAnnotatorClient
	limiter *rate.Limiter
	log     zerolog.Logger
}

// googleCredentialOptions returns client options for credentials found in the environment.
// An empty slice means application default credentials.
func googleCredentialOptions() []option.ClientOption {
	if credJSON := os.Getenv("GOOGLE_CREDENTIALS"); credJSON != "" {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(credJSON))}
	}
	if credFile := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); credFile != "" {
		return []option.ClientOption{option.WithCredentialsFile(credFile)}
	}
	return nil
}

// newLimiter converts requests per second into a limiter; zero or less disables limiting.
func newLimiter(requestsPerSecond float64) *rate.Limiter {
	if requestsPerSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Limit(requestsPerSecond), 1)
}

// NewVisionEngine creates a Vision engine with credentials from environment.
// It expects either GOOGLE_APPLICATION_CREDENTIALS path or GOOGLE_CREDENTIALS JSON in env.
func NewVisionEngine(ctx context.Context, requestsPerSecond float64) (*VisionEngine, error) {
	const op = "NewVisionEngine"

	opts := googleCredentialOptions()
	client, err := vision.NewImageAnnotatorClient(ctx, opts...)
	if err != nil {
		if len(opts) == 0 {
			return nil, WrapOCRError(op, ErrMissingCredentials, "no credentials found in environment")
		}
		return nil, WrapOCRError(op, err, "failed to create Vision client")
	}

	return NewVisionEngineWithClient(client, requestsPerSecond), nil
}

// NewVisionEngineWithClient creates a Vision engine with an explicit client.
func NewVisionEngineWithClient(client *vision.ImageAnnotatorClient, requestsPerSecond float64) *VisionEngine {
	return &VisionEngine{
		client:  client,
		limiter: newLimiter(requestsPerSecond),
		log:     logger.WithComponent("ocr-vision"),
	}
}

// Name implements Engine.
func (v *VisionEngine) Name() string { return "vision" }

// Recognize implements Engine.
func (v *VisionEngine) Recognize(ctx context.Context, in Input) (*PageResult, error) {
	const op = "Recognize"

	if len(in.Image) > MaxImageSizeBytes {
		return nil, atPage(op, NewOCRError(op, ErrImageTooLarge, fmt.Sprintf("%d bytes", len(in.Image))), in.ID, in.PageIndex)
	}

	if err := v.limiter.Wait(ctx); err != nil {
		return nil, WrapOCRError(op, ErrContextCanceled, err.Error())
	}

	req := &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{
			{
				Image: &visionpb.Image{Content: in.Image},
				Features: []*visionpb.Feature{
					{Type: visionpb.Feature_DOCUMENT_TEXT_DETECTION},
				},
				ImageContext: &visionpb.ImageContext{LanguageHints: in.Languages},
			},
		},
	}

	resp, err := v.client.BatchAnnotateImages(ctx, req)
	if err != nil {
		return nil, WrapOCRError(op, ErrOCRFailed, fmt.Sprintf("Vision API call failed: %v", err))
	}
	if len(resp.Responses) == 0 {
		return nil, WrapOCRError(op, ErrOCRFailed, "no response from Vision API")
	}

	imageResp := resp.Responses[0]
	if imageResp.Error != nil {
		return nil, WrapOCRError(op, ErrOCRFailed, fmt.Sprintf("Vision API error: %s", imageResp.Error.Message))
	}

	result := &PageResult{
		Page:    in.PageIndex,
		Width:   in.Width,
		Height:  in.Height,
		Regions: visionLines(imageResp.FullTextAnnotation),
	}

	v.log.Debug().
		Str("document", in.ID).
		Int("page", in.PageIndex).
		Int("regions", len(result.Regions)).
		Msg("Vision page recognized")

	return result, nil
}

// Close closes the underlying Vision client.
func (v *VisionEngine) Close() error {
	if v.client != nil {
		return v.client.Close()
	}
	return nil
}

// visionLines flattens a full text annotation into line regions.
// Words are joined until the recognizer reports a line-ending break.
func visionLines(annotation *visionpb.TextAnnotation) []TextRegion {
	if annotation == nil {
		return nil
	}

	var regions []TextRegion
	for _, page := range annotation.Pages {
		for _, block := range page.Blocks {
			for _, paragraph := range block.Paragraphs {
				var line lineBuilder
				for _, word := range paragraph.Words {
					ended := line.addWord(word)
					if ended {
						if region, ok := line.flush(); ok {
							regions = append(regions, region)
						}
					}
				}
				if region, ok := line.flush(); ok {
					regions = append(regions, region)
				}
			}
		}
	}
	return regions
}

type lineBuilder struct {
	text          strings.Builder
	words         []*visionpb.Word
	confidenceSum float64
}

// addWord appends a word and reports whether it ends the current line.
func (l *lineBuilder) addWord(word *visionpb.Word) bool {
	l.words = append(l.words, word)
	l.confidenceSum += float64(word.Confidence)

	ended := false
	for _, symbol := range word.Symbols {
		l.text.WriteString(symbol.Text)
		if symbol.Property == nil || symbol.Property.DetectedBreak == nil {
			continue
		}
		switch symbol.Property.DetectedBreak.Type {
		case visionpb.TextAnnotation_DetectedBreak_SPACE, visionpb.TextAnnotation_DetectedBreak_SURE_SPACE:
			l.text.WriteByte(' ')
		case visionpb.TextAnnotation_DetectedBreak_HYPHEN:
			l.text.WriteByte('-')
			ended = true
		case visionpb.TextAnnotation_DetectedBreak_EOL_SURE_SPACE, visionpb.TextAnnotation_DetectedBreak_LINE_BREAK:
			ended = true
		}
	}
	return ended
}

func (l *lineBuilder) flush() (TextRegion, bool) {
	defer func() {
		l.text.Reset()
		l.words = nil
		l.confidenceSum = 0
	}()

	text := strings.TrimSpace(l.text.String())
	if text == "" || len(l.words) == 0 {
		return TextRegion{}, false
	}

	return TextRegion{
		Quad:       lineQuad(l.words),
		Text:       text,
		Confidence: l.confidenceSum / float64(len(l.words)),
	}, true
}

// lineQuad spans from the first word's left edge to the last word's right edge.
// Vision reports vertices clockwise from top-left, in the text's own orientation.
func lineQuad(words []*visionpb.Word) []image.Point {
	first, last := words[0].GetBoundingBox().GetVertices(), words[len(words)-1].GetBoundingBox().GetVertices()
	if len(first) == 4 && len(last) == 4 {
		return []image.Point{
			vertexPoint(first[0]),
			vertexPoint(last[1]),
			vertexPoint(last[2]),
			vertexPoint(first[3]),
		}
	}

	// Partial polygons: fall back to the extent of whatever vertices exist.
	var points []image.Point
	for _, word := range words {
		for _, vertex := range word.GetBoundingBox().GetVertices() {
			points = append(points, vertexPoint(vertex))
		}
	}
	if len(points) == 0 {
		return nil
	}
	return QuadFromRect(extent(points))
}

func vertexPoint(v *visionpb.Vertex) image.Point {
	return image.Point{X: int(v.GetX()), Y: int(v.GetY())}
}
