// Package facturx turns a plain visual PDF into a PDF/A-3 Factur-X hybrid:
// the EN16931 XML rides inside the container as an embedded file with
// relationship "Alternative", and an XMP packet declares PDF/A-3b plus the
// Factur-X extension schema.
//
// Embedding is best-effort by design: validation must never fail on a
// compliance-layer defect, so Embed's caller falls back to the plain PDF
// and logs the error.
package facturx

import (
	"bytes"
	"fmt"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// AttachmentName is fixed by the Factur-X specification.
const AttachmentName = "factur-x.xml"

// Meta feeds the document info dictionary and the XMP packet.
type Meta struct {
	Title        string
	Author       string // issuer legal name
	Creator      string
	Producer     string
	DocumentType string // INVOICE or CREDIT_NOTE, mirrored into the fx schema
}

func readConf() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// Embed attaches xmlData as factur-x.xml inside pdf and injects document
// info plus the PDF/A-3 XMP metadata. On any failure the caller keeps the
// original pdf bytes; Embed never panics.
func Embed(pdf, xmlData []byte, meta Meta) ([]byte, error) {
	ctx, err := api.ReadContext(bytes.NewReader(pdf), readConf())
	if err != nil {
		return nil, fmt.Errorf("read pdf: %w", err)
	}

	rootDict, err := ctx.Catalog()
	if err != nil {
		return nil, fmt.Errorf("pdf catalog: %w", err)
	}

	fsRef, err := attachXML(ctx, xmlData)
	if err != nil {
		return nil, fmt.Errorf("attach %s: %w", AttachmentName, err)
	}
	rootDict["Names"] = types.Dict(map[string]types.Object{
		"EmbeddedFiles": types.Dict(map[string]types.Object{
			"Names": types.Array{types.StringLiteral(AttachmentName), *fsRef},
		}),
	})
	// PDF/A-3 wants the associated-files array on the document level.
	rootDict["AF"] = types.Array{*fsRef}

	if err := setMetadata(ctx, rootDict, meta); err != nil {
		return nil, fmt.Errorf("set metadata: %w", err)
	}

	var out bytes.Buffer
	if err := api.WriteContext(ctx, &out); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}
	return out.Bytes(), nil
}

// attachXML creates the embedded file stream and its filespec dict and
// returns an indirect reference to the filespec.
func attachXML(ctx *model.Context, xmlData []byte) (*types.IndirectRef, error) {
	now := types.StringLiteral(types.DateString(time.Now()))

	streamDict := types.StreamDict{
		Dict: types.Dict(map[string]types.Object{
			"Type":    types.Name("EmbeddedFile"),
			// "/" in a PDF name must be escaped as #2F; Name.Value()
			// still decodes this to "text/xml".
			"Subtype": types.Name("text#2Fxml"),
			"Params": types.Dict(map[string]types.Object{
				"Size":    types.Integer(len(xmlData)),
				"ModDate": now,
			}),
		}),
		Content:        xmlData,
		FilterPipeline: nil,
	}
	streamDict.InsertInt("Length", len(xmlData))
	streamDict.Raw = xmlData
	xmlLen := int64(len(xmlData))
	streamDict.StreamLength = &xmlLen

	efRef, err := ctx.IndRefForNewObject(streamDict)
	if err != nil {
		return nil, err
	}

	fsDict := types.Dict(map[string]types.Object{
		"Type": types.Name("Filespec"),
		"F":    types.StringLiteral(AttachmentName),
		"UF":   types.StringLiteral(AttachmentName),
		"Desc": types.StringLiteral("Factur-X/EN16931 invoice data"),
		// "Alternative": the XML is an equivalent representation of the
		// visual document.
		"AFRelationship": types.Name("Alternative"),
		"EF": types.Dict(map[string]types.Object{
			"F":  *efRef,
			"UF": *efRef,
		}),
	})
	return ctx.IndRefForNewObject(fsDict)
}

// setMetadata writes the info dictionary and the XMP metadata stream.
func setMetadata(ctx *model.Context, rootDict types.Dict, meta Meta) error {
	now := types.StringLiteral(types.DateString(time.Now()))
	infoDict := types.Dict(map[string]types.Object{
		"Title":    types.StringLiteral(meta.Title),
		"Author":   types.StringLiteral(meta.Author),
		"Creator":  types.StringLiteral(meta.Creator),
		"Producer": types.StringLiteral(meta.Producer),
		"ModDate":  now,
	})
	infoRef, err := ctx.IndRefForNewObject(infoDict)
	if err != nil {
		return err
	}
	ctx.Info = infoRef

	xmp := buildXMP(meta)
	xmpDict := types.StreamDict{
		Dict: types.Dict(map[string]types.Object{
			"Type":    types.Name("Metadata"),
			"Subtype": types.Name("XML"),
		}),
		Content:        xmp,
		FilterPipeline: nil,
	}
	// XMP streams stay uncompressed so conformance checkers can read them.
	xmpDict.InsertInt("Length", len(xmp))
	xmpDict.Raw = xmp
	xmpLen := int64(len(xmp))
	xmpDict.StreamLength = &xmpLen

	xmpRef, err := ctx.IndRefForNewObject(xmpDict)
	if err != nil {
		return err
	}
	rootDict["Metadata"] = *xmpRef
	return nil
}

// Extract returns the factur-x.xml payload embedded in pdf, byte-identical
// to what Embed attached.
func Extract(pdf []byte) ([]byte, error) {
	ctx, err := api.ReadContext(bytes.NewReader(pdf), readConf())
	if err != nil {
		return nil, fmt.Errorf("read pdf: %w", err)
	}
	rootDict, err := ctx.Catalog()
	if err != nil {
		return nil, err
	}
	namesDict, err := ctx.DereferenceDict(rootDict["Names"])
	if err != nil || namesDict == nil {
		return nil, fmt.Errorf("no embedded files")
	}
	efDict, err := ctx.DereferenceDict(namesDict["EmbeddedFiles"])
	if err != nil || efDict == nil {
		return nil, fmt.Errorf("no embedded files")
	}
	arr, err := ctx.DereferenceArray(efDict["Names"])
	if err != nil || len(arr)%2 != 0 {
		return nil, fmt.Errorf("malformed embedded file tree")
	}
	for i := 0; i+1 < len(arr); i += 2 {
		name, ok := arr[i].(types.StringLiteral)
		if !ok || name.Value() != AttachmentName {
			continue
		}
		fsDict, err := ctx.DereferenceDict(arr[i+1])
		if err != nil || fsDict == nil {
			continue
		}
		ef, err := ctx.DereferenceDict(fsDict["EF"])
		if err != nil || ef == nil {
			continue
		}
		sd, _, err := ctx.DereferenceStreamDict(ef["F"])
		if err != nil || sd == nil {
			continue
		}
		if err := sd.Decode(); err != nil {
			return nil, fmt.Errorf("decode attachment: %w", err)
		}
		return sd.Content, nil
	}
	return nil, fmt.Errorf("%s not found", AttachmentName)
}
