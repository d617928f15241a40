package main

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rogpeppe/go-internal/testscript"
)

func TestMain(m *testing.M) {
	testscript.Main(m, map[string]func(){
		"hookgate": mainFunc,
	})
}

// mainFunc wraps the CLI for testscript execution.
func mainFunc() {
	debugMode = false
	traceMode = false
	timeoutFlag = ""
	maxConcurrent = 0
	noAudit = false
	auditBackend = ""
	crashJSON = false
	crashDryRun = false
	crashMaxDumps = defaultMaxDumps
	crashMaxAge = defaultMaxAge
	doctorFix = false
	doctorVerbose = false
	doctorCategories = nil

	os.Exit(mainWithExitCode())
}

// setupTestEnv points every XDG directory into the work directory and
// tightens permissions of the extracted config files.
func setupTestEnv(env *testscript.Env) error {
	env.Setenv("HOME", env.WorkDir)
	env.Setenv("XDG_CONFIG_HOME", filepath.Join(env.WorkDir, ".config"))
	env.Setenv("XDG_STATE_HOME", filepath.Join(env.WorkDir, ".state"))
	env.Setenv("XDG_DATA_HOME", filepath.Join(env.WorkDir, ".data"))

	return filepath.WalkDir(env.WorkDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}

		switch {
		case strings.HasSuffix(path, ".toml"):
			return os.Chmod(path, 0o600)
		case strings.HasSuffix(path, ".sh"):
			return os.Chmod(path, 0o755)
		default:
			return nil
		}
	})
}

func TestScripts(t *testing.T) {
	testscript.Run(t, testscript.Params{
		Dir:   "testdata/scripts",
		Setup: setupTestEnv,
	})
}
