package protocol

import (
	"fmt"
	"strings"

	"github.com/ahrav/adt-armada/internal/domain/object"
)

// basePath roots every repository resource route.
const basePath = "/api/repository/objects"

// Query parameter names and values used by the object routes.
const (
	// QueryAction selects the lock-management action on an object
	// resource.
	QueryAction = "_action"

	// ActionLock acquires the object lock.
	ActionLock = "LOCK"

	// ActionUnlock releases the object lock.
	ActionUnlock = "UNLOCK"

	// QueryAccessMode declares the intended access when locking.
	QueryAccessMode = "accessMode"

	// AccessModeModify requests a modify lock.
	AccessModeModify = "MODIFY"

	// QueryLockHandle carries the server-issued handle on update,
	// unlock, and delete calls.
	QueryLockHandle = "lockHandle"

	// QueryVersion selects the object version on read and check calls.
	QueryVersion = "version"

	// VersionActive addresses the active version.
	VersionActive = "active"

	// VersionInactive addresses the inactive version.
	VersionInactive = "inactive"

	// QueryObjectURI references an object resource from the check and
	// activation endpoints.
	QueryObjectURI = "objectUri"

	// QueryLongPolling asks the read endpoint to wait for a pending
	// activation to finish before answering. Some deployments reject
	// the flag with HTTP 400, in which case the read is retried once
	// without it.
	QueryLongPolling = "longPolling"
)

// ObjectPath returns the resource path for one object. Grouped objects
// nest under their container, mirroring how the remote system
// addresses them.
func ObjectPath(id object.Identity) string {
	typeSeg := strings.ToLower(id.Type().String())
	if sub := id.SubGroup(); sub != "" {
		return fmt.Sprintf("%s/%s/%s/%s", basePath, typeSeg, strings.ToLower(sub), strings.ToLower(id.Name()))
	}
	return fmt.Sprintf("%s/%s/%s", basePath, typeSeg, strings.ToLower(id.Name()))
}

// CollectionPath returns the path creation calls post to for a type.
func CollectionPath(t object.Type) string {
	return fmt.Sprintf("%s/%s", basePath, strings.ToLower(t.String()))
}

// ValidationPath returns the path of the pre-creation validation
// endpoint for a type.
func ValidationPath(t object.Type) string {
	return fmt.Sprintf("%s/%s/validation", basePath, strings.ToLower(t.String()))
}

// CheckRunPath returns the path of the syntax/consistency check
// endpoint. The object under check is referenced via QueryObjectURI.
func CheckRunPath() string { return basePath + "/checkruns" }

// ActivationPath returns the path of the activation endpoint. The
// object to activate is referenced via QueryObjectURI.
func ActivationPath() string { return basePath + "/activation" }
