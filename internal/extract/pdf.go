package extract

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"os"
	"sort"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"golang.org/x/text/encoding/charmap"

	"github.com/lad75020/SendToOneNote/internal/logging"
)

// Document is the read side of a parsed PDF.
type Document interface {
	PageCount() int
	// PageText returns the page's text, one line per text line.
	PageText(page int) string
	// PageImages returns the raster images the page draws, in resource-name order.
	PageImages(page int) []Image
}

// Image is one embedded raster image ready for upload.
type Image struct {
	MIMEType string
	Data     []byte
}

// Opener parses the PDF at path.
type Opener func(path string, logger *slog.Logger) (Document, error)

type pdfDocument struct {
	ctx    *model.Context
	logger *slog.Logger
	// fonts caches decoders by font object number.
	fonts map[int]*fontDecoder
}

// OpenPDF parses path with pdfcpu.
func OpenPDF(path string, logger *slog.Logger) (Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	ctx, err := api.ReadValidateAndOptimize(f, model.NewDefaultConfiguration())
	if err != nil {
		return nil, fmt.Errorf("pdfcpu read: %w", err)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &pdfDocument{ctx: ctx, logger: logger, fonts: make(map[int]*fontDecoder)}, nil
}

func (d *pdfDocument) PageCount() int {
	return d.ctx.PageCount
}

func (d *pdfDocument) PageText(page int) string {
	r, err := pdfcpu.ExtractPageContent(d.ctx, page)
	if err != nil || r == nil {
		return ""
	}
	data, err := io.ReadAll(r)
	if err != nil || len(data) == 0 {
		return ""
	}
	return streamText(data, d.pageFonts(page))
}

func (d *pdfDocument) PageImages(page int) []Image {
	resources := d.pageResources(page)
	if resources == nil {
		return nil
	}
	var images []Image
	d.collectImages(resources, map[int]bool{}, &images)
	return images
}

func (d *pdfDocument) pageResources(page int) types.Dict {
	pageDict, _, inherited, err := d.ctx.PageDict(page, true)
	if err != nil || pageDict == nil {
		return nil
	}
	resources := d.dictEntry(pageDict, "Resources")
	if resources == nil && inherited != nil {
		resources = inherited.Resources
	}
	return resources
}

// pageFonts returns a decoder for every font in the page's resources, keyed
// by resource name.
func (d *pdfDocument) pageFonts(page int) map[string]*fontDecoder {
	fontDict := d.dictEntry(d.pageResources(page), "Font")
	if len(fontDict) == 0 {
		return nil
	}
	fonts := make(map[string]*fontDecoder, len(fontDict))
	for name, entry := range fontDict {
		objNr, indirect := objectNumber(entry)
		if cached, ok := d.fonts[objNr]; indirect && ok {
			fonts[name] = cached
			continue
		}
		font := d.resolveDict(entry)
		if font == nil {
			continue
		}
		decoder := d.loadFont(font)
		if indirect {
			d.fonts[objNr] = decoder
		}
		fonts[name] = decoder
	}
	return fonts
}

func (d *pdfDocument) loadFont(font types.Dict) *fontDecoder {
	decoder := &fontDecoder{codeBytes: 1, base: charmap.Windows1252}
	if nameValue(font, "Subtype") == "Type0" {
		decoder.codeBytes = 2
	}
	if obj, ok := font.Find("Encoding"); ok {
		obj, err := d.ctx.Dereference(obj)
		if err == nil {
			switch enc := obj.(type) {
			case types.Name:
				decoder.base = baseEncoding(string(enc))
			case types.Dict:
				decoder.base = baseEncoding(nameValue(enc, "BaseEncoding"))
				decoder.differences = d.differences(enc)
			}
		}
	}
	if obj, ok := font.Find("ToUnicode"); ok {
		if sd := d.stream(obj); sd != nil {
			if data := streamContent(sd); len(data) > 0 {
				decoder.toUnicode = parseToUnicode(data)
			}
		}
	}
	return decoder
}

// differences reads an encoding dictionary's Differences array: each integer
// sets the next code and each following glyph name takes one code.
func (d *pdfDocument) differences(enc types.Dict) map[byte]string {
	obj, ok := enc.Find("Differences")
	if !ok {
		return nil
	}
	obj, err := d.ctx.Dereference(obj)
	if err != nil {
		return nil
	}
	arr, ok := obj.(types.Array)
	if !ok {
		return nil
	}
	out := make(map[byte]string)
	code := -1
	for _, item := range arr {
		switch v := item.(type) {
		case types.Integer:
			code = int(v)
		case types.Name:
			if code < 0 || code > 0xFF {
				continue
			}
			if text, ok := glyphText(string(v)); ok {
				out[byte(code)] = text
			}
			code++
		}
	}
	return out
}

// collectImages walks the XObject entries of resources, recursing into form
// XObjects. visited holds object numbers already seen and breaks cycles.
func (d *pdfDocument) collectImages(resources types.Dict, visited map[int]bool, out *[]Image) {
	xobjects := d.dictEntry(resources, "XObject")
	if xobjects == nil {
		return
	}
	names := make([]string, 0, len(xobjects))
	for name := range xobjects {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		entry := xobjects[name]
		if objNr, ok := objectNumber(entry); ok {
			if visited[objNr] {
				continue
			}
			visited[objNr] = true
		}
		sd := d.stream(entry)
		if sd == nil {
			continue
		}
		switch nameValue(sd.Dict, "Subtype") {
		case "Image":
			img, reason := d.convertImage(sd)
			if reason != "" {
				d.logger.Debug("embedded image skipped", logging.String("xobject", name), logging.String("reason", reason))
				continue
			}
			*out = append(*out, img)
		case "Form":
			d.collectImages(d.dictEntry(sd.Dict, "Resources"), visited, out)
		}
	}
}

func (d *pdfDocument) convertImage(sd *types.StreamDict) (Image, string) {
	filters := make([]string, 0, len(sd.FilterPipeline))
	for _, f := range sd.FilterPipeline {
		filters = append(filters, f.Name)
	}
	if len(filters) == 1 {
		switch filters[0] {
		case "DCTDecode":
			return Image{MIMEType: "image/jpeg", Data: sd.Raw}, emptyReason(sd.Raw)
		case "JPXDecode":
			return Image{MIMEType: "image/jp2", Data: sd.Raw}, emptyReason(sd.Raw)
		}
	}
	for _, f := range filters {
		if f != "FlateDecode" && f != "LZWDecode" {
			return Image{}, "unsupported filter " + f
		}
	}

	content := streamContent(sd)
	if len(content) == 0 {
		return Image{}, "no stream data"
	}

	components := d.colorComponents(sd.Dict)
	width, height := intValue(sd.Dict, "Width"), intValue(sd.Dict, "Height")
	data, reason := encodeRawPNG(content, width, height, intValue(sd.Dict, "BitsPerComponent"), components)
	if reason != "" {
		return Image{}, reason
	}
	return Image{MIMEType: "image/png", Data: data}, ""
}

// colorComponents returns 1 for gray and 3 for RGB color spaces, including
// ICC-based spaces with those component counts, and 0 for anything else.
func (d *pdfDocument) colorComponents(dict types.Dict) int {
	obj, ok := dict.Find("ColorSpace")
	if !ok {
		return 0
	}
	obj, err := d.ctx.Dereference(obj)
	if err != nil {
		return 0
	}
	switch cs := obj.(type) {
	case types.Name:
		return deviceComponents(string(cs))
	case types.Array:
		if len(cs) == 0 {
			return 0
		}
		family, ok := cs[0].(types.Name)
		if !ok {
			return 0
		}
		if family != "ICCBased" || len(cs) < 2 {
			return deviceComponents(string(family))
		}
		profile := d.stream(cs[1])
		if profile == nil {
			return 0
		}
		if n := intValue(profile.Dict, "N"); n == 1 || n == 3 {
			return n
		}
	}
	return 0
}

func deviceComponents(name string) int {
	switch name {
	case "DeviceGray", "G":
		return 1
	case "DeviceRGB", "RGB":
		return 3
	}
	return 0
}

// encodeRawPNG wraps 8-bit gray or RGB samples in a PNG container.
func encodeRawPNG(content []byte, width, height, bpc, components int) ([]byte, string) {
	switch {
	case bpc != 8:
		return nil, fmt.Sprintf("unsupported bits per component %d", bpc)
	case components != 1 && components != 3:
		return nil, "unsupported color space"
	case width <= 0 || height <= 0:
		return nil, "missing dimensions"
	case len(content) < width*height*components:
		return nil, "short sample data"
	}

	rect := image.Rect(0, 0, width, height)
	var img image.Image
	if components == 1 {
		gray := image.NewGray(rect)
		copy(gray.Pix, content[:width*height])
		img = gray
	} else {
		rgba := image.NewNRGBA(rect)
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				off := (y*width + x) * 3
				rgba.SetNRGBA(x, y, color.NRGBA{R: content[off], G: content[off+1], B: content[off+2], A: 0xff})
			}
		}
		img = rgba
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, "png encode: " + err.Error()
	}
	return buf.Bytes(), ""
}

func emptyReason(data []byte) string {
	if len(data) == 0 {
		return "no stream data"
	}
	return ""
}

// streamContent returns the decoded bytes of sd, or nil when its filters
// cannot be undone.
func streamContent(sd *types.StreamDict) []byte {
	if sd.Content != nil {
		return sd.Content
	}
	if len(sd.FilterPipeline) == 0 {
		return sd.Raw
	}
	if err := sd.Decode(); err != nil {
		return nil
	}
	return sd.Content
}

func (d *pdfDocument) stream(obj types.Object) *types.StreamDict {
	obj, err := d.ctx.Dereference(obj)
	if err != nil {
		return nil
	}
	switch sd := obj.(type) {
	case types.StreamDict:
		return &sd
	case *types.StreamDict:
		return sd
	}
	return nil
}

func (d *pdfDocument) dictEntry(dict types.Dict, key string) types.Dict {
	if dict == nil {
		return nil
	}
	obj, ok := dict.Find(key)
	if !ok {
		return nil
	}
	return d.resolveDict(obj)
}

func (d *pdfDocument) resolveDict(obj types.Object) types.Dict {
	obj, err := d.ctx.Dereference(obj)
	if err != nil {
		return nil
	}
	if value, ok := obj.(types.Dict); ok {
		return value
	}
	return nil
}

func objectNumber(obj types.Object) (int, bool) {
	switch ref := obj.(type) {
	case types.IndirectRef:
		return int(ref.ObjectNumber), true
	case *types.IndirectRef:
		return int(ref.ObjectNumber), true
	}
	return 0, false
}

func nameValue(dict types.Dict, key string) string {
	obj, ok := dict.Find(key)
	if !ok {
		return ""
	}
	if name, ok := obj.(types.Name); ok {
		return string(name)
	}
	return ""
}

func intValue(dict types.Dict, key string) int {
	obj, ok := dict.Find(key)
	if !ok {
		return 0
	}
	switch v := obj.(type) {
	case types.Integer:
		return int(v)
	case types.Float:
		return int(v)
	}
	return 0
}
