package msgcat

import (
    "embed"
    "errors"
    "fmt"
    "io/fs"
    "os"
    "path/filepath"
    "sort"
    "strings"
    "sync"
    "text/template"

    yaml "gopkg.in/yaml.v3"

    "github.com/YassineElZaart/learn-chess/internal/domain"
)

//go:embed messages.en.yaml
var defaultFiles embed.FS

const defaultFile = "messages.en.yaml"

// Catalog holds client-facing texts keyed by dotted path ("errors.not_your_turn").
// Embedded English texts are loaded first; YAML files in an override directory replace them.
type Catalog struct {
    mu   sync.RWMutex
    data map[string]string
    tpl  map[string]*template.Template
}

// New loads the embedded messages and then applies overrides from dir if provided.
func New(overrideDir string) (*Catalog, error) {
    c := &Catalog{data: make(map[string]string), tpl: make(map[string]*template.Template)}

    raw, err := fs.ReadFile(defaultFiles, defaultFile)
    if err != nil {
        return nil, fmt.Errorf("read embedded messages: %w", err)
    }
    if err := c.apply(raw, nil, defaultFile); err != nil {
        return nil, err
    }
    if strings.TrimSpace(overrideDir) != "" {
        if err := c.applyDir(overrideDir); err != nil {
            return nil, err
        }
    }
    return c, nil
}

func (c *Catalog) applyDir(dir string) error {
    entries, err := os.ReadDir(dir)
    if err != nil {
        return fmt.Errorf("read messages dir: %w", err)
    }
    files := make([]string, 0, len(entries))
    for _, e := range entries {
        if e.IsDir() { continue }
        ext := strings.ToLower(filepath.Ext(e.Name()))
        if ext == ".yaml" || ext == ".yml" { files = append(files, e.Name()) }
    }
    sort.Strings(files)
    seen := make(map[string]string) // key -> filename
    for _, name := range files {
        b, err := os.ReadFile(filepath.Join(dir, name))
        if err != nil { return fmt.Errorf("read %s: %w", name, err) }
        if err := c.apply(b, seen, name); err != nil { return err }
    }
    return nil
}

// apply parses b and merges it. With seen set, a key defined by two override
// files is an error.
func (c *Catalog) apply(b []byte, seen map[string]string, name string) error {
    var m map[string]any
    if err := yaml.Unmarshal(b, &m); err != nil {
        return fmt.Errorf("parse %s: %w", name, err)
    }
    flat := make(map[string]string)
    if err := flatten(m, "", flat); err != nil {
        return fmt.Errorf("parse %s: %w", name, err)
    }
    compiled := make(map[string]*template.Template, len(flat))
    for k, v := range flat {
        if seen != nil {
            if prev, ok := seen[k]; ok {
                return fmt.Errorf("duplicate override key %q in %s and %s", k, prev, name)
            }
            seen[k] = name
        }
        t, err := template.New(k).Option("missingkey=error").Parse(v)
        if err != nil {
            return fmt.Errorf("%s: key %s: %w", name, k, err)
        }
        compiled[k] = t
    }
    c.mu.Lock()
    for k, v := range flat {
        c.data[k] = v
        c.tpl[k] = compiled[k]
    }
    c.mu.Unlock()
    return nil
}

func flatten(src any, prefix string, out map[string]string) error {
    switch v := src.(type) {
    case map[string]any:
        for k, vv := range v {
            key := k
            if prefix != "" { key = prefix + "." + k }
            if err := flatten(vv, key, out); err != nil { return err }
        }
        return nil
    case string:
        if prefix == "" { return errors.New("string value without key") }
        out[prefix] = v
        return nil
    case nil:
        return nil
    default:
        return fmt.Errorf("unsupported value at %s: %T", prefix, v)
    }
}

// Has reports whether key is defined.
func (c *Catalog) Has(key string) bool {
    c.mu.RLock()
    defer c.mu.RUnlock()
    _, ok := c.data[key]
    return ok
}

// Render executes the template stored under key. Missing keys and missing
// template fields are errors; callers choose their own fallback.
func (c *Catalog) Render(key string, data any) (string, error) {
    c.mu.RLock()
    t, ok := c.tpl[strings.TrimSpace(key)]
    c.mu.RUnlock()
    if !ok {
        return "", fmt.Errorf("template not found: %s", key)
    }
    var b strings.Builder
    if err := t.Execute(&b, data); err != nil { return "", err }
    return b.String(), nil
}

// ErrorMessage returns the text for an error code, or "" when none is defined.
func (c *Catalog) ErrorMessage(code domain.Error) string {
    s, err := c.Render("errors."+string(code), nil)
    if err != nil {
        return ""
    }
    return s
}
