package archive

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
)

// psFoundMarker prefixes the output of a matched entry, so an empty entry is
// not mistaken for a missing one.
const psFoundMarker = "OK:"

// PowerShell drives System.IO.Compression through powershell.exe. Entry bytes
// come back as base64 because console output is text only.
type PowerShell struct {
	Runner Runner
	Binary string
}

func (p PowerShell) Name() string { return "powershell" }

func (p PowerShell) binary() string {
	if p.Binary != "" {
		return p.Binary
	}
	return "powershell.exe"
}

func (p PowerShell) run(ctx context.Context, script string) ([]byte, error) {
	args := []string{"-NoProfile", "-ExecutionPolicy", "Bypass", "-Command", script}
	res, err := p.Runner.Run(ctx, p.binary(), args, RunOptions{})
	if err != nil {
		return nil, fmt.Errorf("%s: %w (%s)", p.binary(), err, strings.TrimSpace(string(res.Stderr)))
	}
	return res.Stdout, nil
}

func (p PowerShell) ListEntries(ctx context.Context, archivePath string) ([]string, error) {
	script := fmt.Sprintf(
		"Add-Type -A 'System.IO.Compression.FileSystem'; "+
			"$z=[IO.Compression.ZipFile]::OpenRead('%s'); "+
			"$z.Entries | ForEach-Object { $_.FullName }; $z.Dispose();",
		escapePSString(archivePath))
	out, err := p.run(ctx, script)
	if err != nil {
		return nil, err
	}
	return splitEntries(string(out)), nil
}

func (p PowerShell) ReadEntry(ctx context.Context, archivePath, entryPath string) ([]byte, error) {
	script := fmt.Sprintf(
		"Add-Type -A 'System.IO.Compression.FileSystem'; "+
			"$z=[IO.Compression.ZipFile]::OpenRead('%s'); "+
			"$e=$z.Entries | Where-Object { $_.FullName -eq '%s' }; "+
			"if ($e -ne $null) { $ms = New-Object System.IO.MemoryStream; $s=$e.Open(); $s.CopyTo($ms); $s.Close(); "+
			"[Console]::Out.Write('"+psFoundMarker+"' + [Convert]::ToBase64String($ms.ToArray())) } $z.Dispose();",
		escapePSString(archivePath), escapePSString(entryPath))
	out, err := p.run(ctx, script)
	if err != nil {
		return nil, err
	}

	encoded, found := strings.CutPrefix(strings.TrimSpace(string(out)), psFoundMarker)
	if !found {
		return nil, &EntryNotFoundError{Archive: archivePath, Entry: entryPath}
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode base64 output for %s: %w", entryPath, err)
	}
	return data, nil
}

// escapePSString escapes s for a single-quoted PowerShell literal.
func escapePSString(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
