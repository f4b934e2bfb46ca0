//go:build js && wasm

package main

import (
	"archive/zip"
	"bytes"
	"fmt"
	"sort"
	"syscall/js"
	"time"

	tcx "github.com/lucasjlepore/tcx-analyzer"
	"github.com/lucasjlepore/tcx-analyzer/pipeline"
)

func main() {
	js.Global().Set("analyzeTcx", js.FuncOf(analyzeTcx))
	select {}
}

func failure(msg string) map[string]any {
	return map[string]any{"ok": false, "error": msg}
}

func analyzeTcx(_ js.Value, args []js.Value) any {
	if len(args) < 2 {
		return failure("expected arguments: fileBytes(Uint8Array), options(object)")
	}
	fileArg := args[0]
	optsArg := args[1]
	if fileArg.IsUndefined() || fileArg.IsNull() || fileArg.Get("length").Int() == 0 {
		return failure("tcx file bytes are required")
	}

	fileBytes := make([]byte, fileArg.Get("length").Int())
	if n := js.CopyBytesToGo(fileBytes, fileArg); n == 0 {
		return failure("failed to read TCX bytes from JS input")
	}

	params := tcx.DefaultParams()
	if v := getFloat(optsArg, "high_altitude"); v > 0 {
		params.HighAltitude = v
	}
	params.Recovery = getBool(optsArg, "recovery", params.Recovery)

	result, err := pipeline.RunBytes(pipeline.BytesOptions{
		SourceFileName: getString(optsArg, "source_file_name", "input.tcx"),
		TCXData:        fileBytes,
		FTPOverride:    getFloat(optsArg, "ftp_w"),
		Format:         getString(optsArg, "format", "parquet"),
		CopySource:     true,
		FITExport:      getBool(optsArg, "fit", false),
		Params:         &params,
	})
	if err != nil {
		return failure(err.Error())
	}

	zipBytes, err := zipArtifacts(result.Files)
	if err != nil {
		return failure(fmt.Sprintf("create zip: %v", err))
	}
	payload := js.Global().Get("Uint8Array").New(len(zipBytes))
	js.CopyBytesToJS(payload, zipBytes)

	fileNames := make([]string, 0, len(result.Files))
	for name := range result.Files {
		fileNames = append(fileNames, name)
	}
	sort.Strings(fileNames)

	return map[string]any{
		"ok":       true,
		"zip":      payload,
		"notes":    result.Analysis.Notes,
		"warnings": stringsToAny(result.Warnings),
		"files":    stringsToAny(fileNames),
	}
}

func zipArtifacts(files map[string][]byte) ([]byte, error) {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	epoch := time.Unix(0, 0).UTC()
	for _, name := range names {
		h := &zip.FileHeader{Name: name, Method: zip.Deflate}
		h.SetModTime(epoch)
		w, err := zw.CreateHeader(h)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(files[name]); err != nil {
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func lookup(v js.Value, key string) (js.Value, bool) {
	if v.IsUndefined() || v.IsNull() {
		return js.Undefined(), false
	}
	out := v.Get(key)
	if out.IsUndefined() || out.IsNull() {
		return js.Undefined(), false
	}
	return out, true
}

func getString(v js.Value, key, fallback string) string {
	out, ok := lookup(v, key)
	if !ok || out.Type() != js.TypeString || out.String() == "" {
		return fallback
	}
	return out.String()
}

func getFloat(v js.Value, key string) float64 {
	out, ok := lookup(v, key)
	if !ok || out.Type() != js.TypeNumber {
		return 0
	}
	return out.Float()
}

func getBool(v js.Value, key string, fallback bool) bool {
	out, ok := lookup(v, key)
	if !ok || out.Type() != js.TypeBoolean {
		return fallback
	}
	return out.Bool()
}

func stringsToAny(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
