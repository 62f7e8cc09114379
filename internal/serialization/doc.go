// Package serialization stores named tensors in the .pots container used
// for trained models and checkpoints.
//
//	Layout:
//	  0x00  [4]  magic "POTS"
//	  0x04  [4]  version (uint32 LE, currently 2)
//	  0x08  [4]  flags (uint32 LE)
//	  0x0C  [4]  reserved
//	  0x10  [8]  header size (uint64 LE)
//	  0x18  [8]  data size (uint64 LE)
//	  0x20  [32] SHA-256 of the data section
//	  0x40       JSON header, zero padded to a 64-byte boundary
//	  ...        tensor data in header order
//
// Tensors are written in name order, so equal state dicts produce equal
// files apart from the creation time.
//
//	err := serialization.WriteFile("saits.pots", stateDict, serialization.Header{ModelType: "SAITS"})
//	stateDict, header, err := serialization.ReadFile("saits.pots", serialization.ReaderOptions{})
package serialization
