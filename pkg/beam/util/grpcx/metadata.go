// Licensed to the Apache Software Foundation (ASF) under one or more
// contributor license agreements.  See the NOTICE file distributed with
// this work for additional information regarding copyright ownership.
// The ASF licenses this file to You under the Apache License, Version 2.0
// (the "License"); you may not use this file except in compliance with
// the License.  You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package grpcx contains gRPC helpers shared by the harness and its tests.
package grpcx

import (
	"context"

	"github.com/beamfn/harness/pkg/beam/internal/errors"
	"google.golang.org/grpc/metadata"
)

// workerIDKey is the metadata key runners use to tell workers apart.
const workerIDKey = "worker_id"

// WriteWorkerID returns ctx with the worker id added to its outgoing gRPC
// metadata. Metadata already in ctx is kept.
func WriteWorkerID(ctx context.Context, id string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, workerIDKey, id)
}

// ReadWorkerID returns the single worker id of an incoming gRPC context.
func ReadWorkerID(ctx context.Context) (string, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", errors.New("no gRPC metadata in context")
	}
	switch ids := md.Get(workerIDKey); len(ids) {
	case 0:
		return "", errors.Errorf("no %v in metadata %v", workerIDKey, md)
	case 1:
		return ids[0], nil
	default:
		return "", errors.Errorf("multiple worker ids in metadata: %v", ids)
	}
}
