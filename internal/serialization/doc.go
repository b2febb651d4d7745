// Package serialization implements the .born checkpoint runtime: the file layout, the
// object-graph section carried by training checkpoints, and the Load entry point.
//
//	Format v1:
//	  [4 bytes: Magic "BORN"]
//	  [4 bytes: Version (uint32 LE)]
//	  [4 bytes: Flags (uint32 LE)]
//	  [8 bytes: Header Size (uint64 LE)]
//	  [Header: JSON metadata]
//	  [Tensor data: raw bytes, 64-byte aligned]
//
//	Format v2:
//	  [64 bytes: fixed header (magic, version, flags, header size, data size, SHA-256)]
//	  [Header: JSON metadata]
//	  [Tensor data: raw bytes, 64-byte aligned]
//
// The JSON header may carry an "objects" section (flag bit 3). Objects are a JSON graph in
// which typed nodes look like {"$type": "born.OrderedDict", "$state": ...}. Rebuilding a
// typed node runs code chosen by the file, so Load is weights-only by default: only types
// registered as safe are rebuilt and anything else fails with ErrWeightsOnly. Callers that
// trust a file opt out with LoadOptions{WeightsOnly: Bool(false)}.
//
// Load and NewObjectDecoder dispatch through process-wide hooks (SetLoadHook,
// SetDecoderHook) so that a compatibility layer can adjust their policy for code it does
// not control.
//
// Example usage:
//
//	ckpt, err := serialization.Load(ctx, "model.born", serialization.LoadOptions{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	w := ckpt.Tensors["head.weight"]
package serialization
