package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/invopop/jsonschema"

	"miniplaza/proto"
)

// 为线协议的每种载荷生成 JSON Schema，供其它语言的客户端校验消息形状
func main() {
	var outDir string
	flag.StringVar(&outDir, "out", "", "directory to write the JSON schemas")
	flag.Parse()

	if outDir == "" {
		fmt.Fprintln(os.Stderr, "--out is required")
		os.Exit(1)
	}

	payloads := map[string]any{
		"envelope":     new(proto.Envelope),
		"player-state": new(proto.PlayerState),
		"move":         new(proto.MovePayload),
		"welcome":      new(proto.WelcomePayload),
		"player-left":  new(proto.LeftPayload),
		"emoji":        new(proto.EmojiPayload),
		"color":        new(proto.ColorPayload),
	}

	for name, p := range payloads {
		schema := buildSchema(name, p)
		outPath := filepath.Join(outDir, name+".schema.json")
		if err := writeSchema(outPath, schema); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write %s: %v\n", outPath, err)
			os.Exit(1)
		}
	}
}

func buildSchema(name string, payload any) *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: true,
	}
	schema := reflector.Reflect(payload)
	schema.Title = "MiniPlaza wire payload: " + name
	schema.Description = "Validates frames exchanged over the /ws relay endpoint"
	return schema
}

func writeSchema(outPath string, schema *jsonschema.Schema) error {
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create schema directory: %w", err)
	}

	tmpPath := outPath + ".tmp"
	if err := os.WriteFile(tmpPath, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write temp schema: %w", err)
	}

	if err := os.Rename(tmpPath, outPath); err != nil {
		return fmt.Errorf("replace schema: %w", err)
	}

	return nil
}
