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


package grpcx

import (
	"context"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
)

func TestDefaultDial(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	srv := grpc.NewServer()
	go srv.Serve(lis)
	defer srv.Stop()

	cc, err := DefaultDial(context.Background(), lis.Addr().String(), 5*time.Second)
	if err != nil {
		t.Fatalf("DefaultDial failed: %v", err)
	}
	defer cc.Close()
	if got := cc.GetState(); got != connectivity.Ready {
		t.Errorf("connection state = %v, want %v", got, connectivity.Ready)
	}
}

func TestDefaultDial_timeout(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := lis.Addr().String()
	lis.Close() // nothing listens on addr anymore

	start := time.Now()
	if cc, err := DefaultDial(context.Background(), addr, 200*time.Millisecond); err == nil {
		cc.Close()
		t.Fatal("DefaultDial succeeded, want error")
	}
	if d := time.Since(start); d > 5*time.Second {
		t.Errorf("DefaultDial took %v, want about the timeout", d)
	}
}
