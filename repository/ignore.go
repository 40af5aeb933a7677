package repository

import (
	"bufio"
	"os"
	"path/filepath"

	ignore "github.com/sabhiram/go-gitignore"
)

// StateDir holds run-local state (history database) inside the tree.
const StateDir = ".codeteam"

// DefaultIgnorePatterns are never treated as repository content.
var DefaultIgnorePatterns = []string{
	StateDir + "/",
	".git/",
	"__pycache__/",
	"*.pyc",
	".pytest_cache/",
}

// ignoreRules combines the default patterns, extra patterns and the tree's
// own .gitignore.
func ignoreRules(root string, extra []string) *ignore.GitIgnore {
	rules := append([]string{}, DefaultIgnorePatterns...)
	rules = append(rules, extra...)

	if lines, err := readIgnoreFile(filepath.Join(root, ".gitignore")); err == nil {
		rules = append(rules, lines...)
	}

	return ignore.CompileIgnoreLines(rules...)
}

func readIgnoreFile(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var lines []string

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}

	return lines, scanner.Err()
}
