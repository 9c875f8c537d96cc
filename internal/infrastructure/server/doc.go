// Package server composes the gateway with its HTTP and gRPC surfaces.
//
// NewServer builds every collaborator from config: the site profile, the
// script sandbox, the browser driver factory, the session pool, the
// translator, the optional redis reply cache and the gateway itself. Nothing
// touches the network until Initialize or Run.
//
// Run serves HTTP and gRPC health on separate listeners, warms the pool in
// the background and shuts everything down when its context ends:
//
//	srv, err := server.NewServer(cfg, version)
//	if err != nil {
//		return err
//	}
//	return srv.Run(ctx)
package server
