// Package validate checks parcad documents for corruption.
//
// ValidateInvariants checks the structural invariants every document must
// satisfy, including after any merge:
//
//	V101  order starts with origin, xy, xz, yz
//	V102  order and features are a bijection without duplicates
//	V103  the rebuild gate is null or a member of order
//	V104  sketch element ids are well formed and unique within their sketch
//	V105  reference tokens decode and name an existing origin feature
//
// ValidateDocument adds a CUE schema check over the document tree (V110)
// and a decode of every record (V111).
//
// Warnings never fail a report. A reference whose origin was deleted
// (V106) is a warning because deletes do not cascade; inputs evaluated
// after their consumer (V112) and dependency cycles (V113) are warnings
// because rebuild reports them per feature. Snapshot anomalies are reported
// as warnings under their anomaly kind.
package validate
