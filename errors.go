// errors.go: structured error definitions for the devtools plugin host
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package devtools

import (
	stderrors "errors"

	"github.com/agilira/go-errors"
)

// Error codes for the devtools plugin host
const (
	// Descriptor errors (2100-2199)
	ErrCodeDescriptorMissing    = "DESCRIPTOR_2101"
	ErrCodeDescriptorParseError = "DESCRIPTOR_2102"

	// Catalog errors (2200-2299)
	ErrCodeTypeResolution      = "CATALOG_2201"
	ErrCodeCapabilityMismatch  = "CATALOG_2202"
	ErrCodeInstantiationFailed = "CATALOG_2203"
	ErrCodeDuplicateDescriptor = "CATALOG_2204"
	ErrCodeTypeRegistration    = "CATALOG_2205"

	// Installation and instance errors (2300-2399)
	ErrCodeNotInstalled     = "INSTANCE_2301"
	ErrCodeAlreadyBound     = "INSTANCE_2302"
	ErrCodeInstanceReleased = "INSTANCE_2303"
	ErrCodePluginInitFailed = "INSTANCE_2304"
	ErrCodeInvalidContext   = "INSTANCE_2305"

	// Plugin I/O errors (2400-2499)
	ErrCodeIOError = "IO_2401"

	// Analysis pipeline errors (2500-2599)
	ErrCodeAnalysisFailed = "ANALYSIS_2501"

	// Host configuration errors (2600-2699)
	ErrCodeConfigNotFound   = "CONFIG_2601"
	ErrCodeConfigParse      = "CONFIG_2602"
	ErrCodeConfigValidation = "CONFIG_2603"
	ErrCodeConfigWatcher    = "CONFIG_2604"

	// Installation state persistence errors (2700-2799)
	ErrCodeStateStore = "STATE_2701"

	// Host lifecycle errors (2800-2899)
	ErrCodeHostShutdown = "HOST_2801"
)

// Descriptor error constructors

func NewDescriptorMissingError(location string, cause error) *errors.Error {
	if cause != nil {
		return errors.Wrap(cause, ErrCodeDescriptorMissing, "Plugin descriptor not found").
			WithUserMessage("The plugin descriptor resource could not be found").
			WithContext("location", location).
			WithSeverity("warning")
	}
	return errors.New(ErrCodeDescriptorMissing, "Plugin descriptor not found").
		WithUserMessage("The plugin descriptor resource could not be found").
		WithContext("location", location).
		WithSeverity("warning")
}

func NewDescriptorParseError(location string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeDescriptorParseError, "Malformed plugin descriptor").
		WithUserMessage("The plugin descriptor must be a list of {\"pluginClass\": ...} records").
		WithContext("location", location).
		WithSeverity("error")
}

// Catalog error constructors

func NewTypeResolutionError(identifier string) *errors.Error {
	return errors.New(ErrCodeTypeResolution, "Plugin type not found").
		WithUserMessage("The plugin identifier does not name a known plugin type").
		WithContext("identifier", identifier).
		WithSeverity("error")
}

func NewCapabilityMismatchError(identifier string, reason string) *errors.Error {
	return errors.New(ErrCodeCapabilityMismatch, "Plugin type does not satisfy the content plugin contract").
		WithUserMessage("The plugin does not provide the required capabilities").
		WithContext("identifier", identifier).
		WithContext("reason", reason).
		WithSeverity("error")
}

func NewInstantiationFailedError(identifier string, cause error) *errors.Error {
	if cause == nil {
		return errors.New(ErrCodeInstantiationFailed, "Plugin instantiation failed").
			WithUserMessage("The plugin could not be constructed").
			WithContext("identifier", identifier).
			WithSeverity("error")
	}
	return errors.Wrap(cause, ErrCodeInstantiationFailed, "Plugin instantiation failed").
		WithUserMessage("The plugin could not be constructed").
		WithContext("identifier", identifier).
		WithSeverity("error")
}

func NewDuplicateDescriptorError(identifier string, firstIndex int) *errors.Error {
	return errors.New(ErrCodeDuplicateDescriptor, "Duplicate plugin descriptor").
		WithUserMessage("The plugin is listed more than once; only the first entry is used").
		WithContext("identifier", identifier).
		WithContext("first_index", firstIndex).
		WithSeverity("warning")
}

func NewTypeRegistrationError(identifier string, message string) *errors.Error {
	return errors.New(ErrCodeTypeRegistration, message).
		WithUserMessage("The plugin type could not be registered").
		WithContext("identifier", identifier).
		WithSeverity("error")
}

// Installation and instance error constructors

func NewNotInstalledError(typeID string) *errors.Error {
	return errors.New(ErrCodeNotInstalled, "Plugin type not installed").
		WithUserMessage("Install the plugin before opening it").
		WithContext("plugin_type", typeID).
		WithSeverity("warning")
}

func NewAlreadyBoundError(contextID ContextID, instanceID string) *errors.Error {
	return errors.New(ErrCodeAlreadyBound, "Context or instance already bound").
		WithUserMessage("Each tab owns exactly one plugin instance").
		WithContext("context_id", string(contextID)).
		WithContext("instance_id", instanceID).
		WithSeverity("error")
}

func NewInvalidContextError(instanceID string) *errors.Error {
	return errors.New(ErrCodeInvalidContext, "Context id must not be empty").
		WithUserMessage("The tab has no identifier").
		WithContext("instance_id", instanceID).
		WithSeverity("error")
}

func NewInstanceReleasedError(instanceID string) *errors.Error {
	return errors.New(ErrCodeInstanceReleased, "Plugin instance already released").
		WithUserMessage("The plugin instance has been closed").
		WithContext("instance_id", instanceID).
		WithSeverity("error")
}

func NewPluginInitFailedError(typeID string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodePluginInitFailed, "Plugin initialization failed").
		WithUserMessage("The plugin failed to initialize").
		WithContext("plugin_type", typeID).
		WithSeverity("error")
}

// I/O error constructors

// NewIOError reports a failed open or save. The core never retries; the
// retryable flag only tells the shell a second attempt may succeed.
func NewIOError(op string, path string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeIOError, "Plugin file operation failed").
		WithUserMessage("The file could not be "+opVerb(op)).
		WithContext("operation", op).
		WithContext("path", path).
		WithSeverity("error").
		AsRetryable()
}

func opVerb(op string) string {
	switch op {
	case "open":
		return "opened"
	case "save":
		return "saved"
	default:
		return "accessed"
	}
}

// Analysis error constructors

func NewAnalysisFailedError(pipeline string, seq uint64, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeAnalysisFailed, "Content analysis failed").
		WithUserMessage("Highlighting could not be updated").
		WithContext("pipeline", pipeline).
		WithContext("seq", seq).
		WithSeverity("warning")
}

// Configuration error constructors

func NewConfigNotFoundError(path string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeConfigNotFound, "Configuration file not found").
		WithUserMessage("The host configuration file could not be read").
		WithContext("path", path).
		WithSeverity("error")
}

func NewConfigParseError(path string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeConfigParse, "Configuration parse error").
		WithUserMessage("Failed to parse the host configuration file").
		WithContext("path", path).
		WithSeverity("error")
}

func NewConfigValidationError(message string, cause error) *errors.Error {
	if cause != nil {
		return errors.Wrap(cause, ErrCodeConfigValidation, message).
			WithUserMessage("The host configuration is invalid").
			WithSeverity("error")
	}
	return errors.New(ErrCodeConfigValidation, message).
		WithUserMessage("The host configuration is invalid").
		WithSeverity("error")
}

func NewConfigWatcherError(message string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeConfigWatcher, message).
		WithUserMessage("Descriptor file watching failed").
		WithSeverity("warning")
}

// State persistence error constructors

func NewStateStoreError(path string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeStateStore, "Installation state store failure").
		WithUserMessage("The plugin installation state could not be persisted").
		WithContext("path", path).
		WithSeverity("warning")
}

// Host lifecycle error constructors

func NewHostShutdownError() *errors.Error {
	return errors.New(ErrCodeHostShutdown, "Plugin host is shut down").
		WithUserMessage("The plugin host is no longer running").
		WithSeverity("error")
}

// HasErrorCode reports whether err, or any error it wraps, carries code.
func HasErrorCode(err error, code string) bool {
	var pluginErr *errors.Error
	if stderrors.As(err, &pluginErr) {
		return string(pluginErr.Code) == code
	}
	return false
}
