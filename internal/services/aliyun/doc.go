// Package aliyun holds the pieces shared by the Alibaba Cloud speech
// clients: credentials, a POP RPC caller backed by the official SDK, and the
// NLS token provider.
//
// Subpackages filetrans and nls build on Caller and TokenProvider.
package aliyun
