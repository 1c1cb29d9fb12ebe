// Package mount establishes FUSE mounts against the kernel driver.
//
// It opens the driver device node, normalizes caller options for older
// driver builds, and walks an ordered list of mount tiers until one of them
// is accepted by the kernel.
//
// # Logging Verbosity Convention
//
// This package follows Kubernetes logging conventions for verbosity levels:
//
//   - V(0): Always visible - failed attempts, exhausted tiers
//   - V(2): Production default - operation outcomes
//     Examples: "Mounted /mnt/x with tier full-strict", "Unmounted /mnt/x"
//   - V(4): Debug level - option strings, per-tier parameters
//   - V(5): Trace level - mount table parsing details
//
// Production deployments use V(2) by default. Set FUSERMOUNT_VERBOSITY=4 for troubleshooting.
package mount
