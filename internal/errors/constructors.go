package errors

// Convenience functions for common error patterns

// Toolchain errors

func ToolUnavailable(tool string, cause error) *BuildError {
	return Wrap(cause, KindToolUnavailable, "toolchain component missing or broken").
		WithContext("tool", tool)
}

func CommandNotFound(command, hint string) *BuildError {
	return New(KindCommandNotFound, "command not found").
		WithContext("command", command).
		WithContext("hint", hint)
}

func CommandFailed(command string, code int, stdout, stderr string) *BuildError {
	return New(KindCommandFailed, "command exited with non-zero status").
		WithContext("command", command).
		WithContext("code", code).
		WithContext("stdout", stdout).
		WithContext("stderr", stderr)
}

func CommandVersionNotFulfilled(command, current, required, hint string) *BuildError {
	return New(KindCommandVersionNotFulfilled, "command version requirement not fulfilled").
		WithContext("command", command).
		WithContext("current", current).
		WithContext("required", required).
		WithContext("hint", hint)
}

// Source crate errors

func AnalysisFailed(path string, cause error) *BuildError {
	return Wrap(cause, KindAnalysisFailed, "unable to analyse source crate").
		WithContext("path", path)
}

func InvalidCratePath(path string) *BuildError {
	return New(KindInvalidCratePath, "no usable crate description").
		WithContext("path", path)
}

func MissingCrateType() *BuildError {
	return New(KindMissingCrateType, "crate has both lib.rs and main.rs, crate type must be set explicitly")
}

// Shared state errors

func LockFailed(operation string, cause error) *BuildError {
	return Wrap(cause, KindLockFailed, "naming slot lock operation failed").
		WithContext("operation", operation)
}

func ManifestIOFailed(operation string, cause error) *BuildError {
	return Wrap(cause, KindManifestIOFailed, "manifest I/O failed").
		WithContext("operation", operation)
}

// Build errors

func BuildFailed(diagnostics []string) *BuildError {
	return &BuildError{
		Kind:        KindBuildFailed,
		Severity:    SeverityError,
		Message:     "build failed",
		Diagnostics: diagnostics,
	}
}

func InternalError(message string, cause error) *BuildError {
	return Wrap(cause, KindInternal, message)
}
