package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/callgraph/internal/grammar"
)

func TestGo_ReceiversFieldsAndImports(t *testing.T) {
	src := `package main

import (
	"fmt"
	"strings"
)

type Store struct{}

func (s *Store) Get(k string) string { return strings.ToUpper(k) }

type Server struct {
	store *Store
	Logger
}

func NewServer() *Server { return &Server{store: &Store{}} }

func (s *Server) Handle() {
	s.store.Get("a")
	s.log()
	fmt.Println("x")
}

func (s *Server) log() {}

func main() {
	srv := NewServer()
	srv.Handle()
	st := &Store{}
	st.Get("b")
}
`
	s := process(t, grammar.Go, src)

	assert.Equal(t, []string{"fmt", "strings"}, s.Imports)
	assert.Equal(t, "Server", fn(t, s, "NewServer").ReturnType)
	assert.Equal(t, []string{"strings.ToUpper"}, fn(t, s, "Store.Get").ResolvedCalls)
	assert.Equal(t, []string{"Server.log", "Store.Get", "fmt.Println"}, fn(t, s, "Server.Handle").ResolvedCalls)
	assert.Equal(t, []string{"NewServer", "Server.Handle", "Store.Get"}, fn(t, s, "main").ResolvedCalls)

	server := s.Types["Server"]
	require.NotNil(t, server)
	assert.Equal(t, []string{"Handle", "log"}, server.Members)
	assert.Equal(t, []string{"Logger"}, server.BaseTypes)
	assert.Equal(t, map[string]string{"store": "Store"}, server.InstanceSymbols)
	assert.Equal(t, []string{"Get"}, s.Types["Store"].Members)
}

func TestGo_FuncLiteralCallsBelongToEnclosingFunction(t *testing.T) {
	src := `package main

func run() {
	go func() {
		work()
	}()
}
`
	s := process(t, grammar.Go, src)
	assert.Equal(t, []string{"work"}, fn(t, s, "run").ResolvedCalls)
}

func TestC_PointerReturnAndIncludes(t *testing.T) {
	src := `#include <stdio.h>
#include "local.h"

struct Point { int x; int y; };

static struct Point *make_point(int x) {
	return NULL;
}

int main(void) {
	struct Point *p = make_point(1);
	printf("%d", p->x);
	return 0;
}
`
	s := process(t, grammar.C, src)

	assert.Equal(t, []string{"stdio.h", "local.h"}, s.Imports)
	require.Contains(t, s.Functions, "make_point")
	assert.Equal(t, []string{"make_point", "printf"}, fn(t, s, "main").ResolvedCalls)
	require.Contains(t, s.Types, "Point")
	assert.Len(t, s.Types, 1)
}

func TestJava_FieldsAndImplicitThis(t *testing.T) {
	src := `import java.util.List;

public class Caller extends Base implements Runnable {
    private Processor p;

    public Caller() {
        this.p = new Processor();
    }

    public void go() {
        p.run();
        this.p.stop();
        helper();
        Local l = new Local();
        l.use();
    }

    private void helper() {}
}
`
	s := process(t, grammar.Java, src)

	assert.Equal(t, []string{"java.util.List"}, s.Imports)
	assert.Equal(t,
		[]string{"Caller.helper", "Local.use", "Processor.run", "Processor.stop"},
		fn(t, s, "Caller.go").ResolvedCalls)

	caller := s.Types["Caller"]
	require.NotNil(t, caller)
	assert.Equal(t, []string{"Base", "Runnable"}, caller.BaseTypes)
	assert.Equal(t, "Processor", caller.InstanceSymbols["p"])
	assert.Equal(t, []string{"Caller", "go", "helper"}, caller.Members)
}

func TestJavaScript_ClassesAndRequire(t *testing.T) {
	src := `const fs = require('fs');
import { x } from './x';

class Caller extends Base {
  constructor() {
    super();
    this.p = new Processor();
  }

  go() {
    this.p.run();
    fs.readFileSync('a');
  }
}

const helper = () => {
  new Caller().go();
};
`
	s := process(t, grammar.JavaScript, src)

	assert.ElementsMatch(t, []string{"fs", "./x"}, s.Imports)
	assert.Empty(t, fn(t, s, "Caller.constructor").ResolvedCalls)
	assert.Equal(t, []string{"Processor.run", "fs.readFileSync"}, fn(t, s, "Caller.go").ResolvedCalls)
	assert.Equal(t, []string{"Caller.go"}, fn(t, s, "helper").ResolvedCalls)
	assert.Equal(t, []string{"Base"}, s.Types["Caller"].BaseTypes)
}

func TestTypeScript_TypedParameters(t *testing.T) {
	src := `function render(view: View): Frame {
  view.paint();
  return view.frame();
}
`
	s := process(t, grammar.TypeScript, src)
	render := fn(t, s, "render")
	assert.Equal(t, "Frame", render.ReturnType)
	assert.Equal(t, []string{"View.frame", "View.paint"}, render.ResolvedCalls)
}

func TestRust_ImplBlocksAndSelf(t *testing.T) {
	src := `use std::collections::HashMap;

struct Server {
    store: Store,
}

impl Server {
    fn new() -> Self {
        Server { store: Store::new() }
    }

    fn handle(&self) {
        self.store.get();
        Self::helper();
    }

    fn helper() {}
}

fn main() {
    let s = Server::new();
    s.handle();
}
`
	s := process(t, grammar.Rust, src)

	assert.Equal(t, []string{"std::collections::HashMap"}, s.Imports)
	assert.Equal(t, "Server", fn(t, s, "Server.new").ReturnType)
	assert.Equal(t, []string{"Store.new"}, fn(t, s, "Server.new").ResolvedCalls)
	assert.Equal(t, []string{"Server.helper", "Store.get"}, fn(t, s, "Server.handle").ResolvedCalls)
	assert.Equal(t, []string{"Server.handle", "Server.new"}, fn(t, s, "main").ResolvedCalls)

	server := s.Types["Server"]
	require.NotNil(t, server)
	assert.Equal(t, []string{"new", "handle", "helper"}, server.Members)
	assert.Equal(t, "Store", server.InstanceSymbols["store"])
}

func TestPHP_ThisChainsAndParentConstructor(t *testing.T) {
	src := `<?php
use App\Models\Processor;

class Caller extends Base {
    private Processor $p;

    public function __construct() {
        parent::__construct();
        $this->p = new Processor();
    }

    public function go() {
        $this->p->run();
        self::helper();
    }

    private static function helper() {}
}
`
	s := process(t, grammar.PHP, src)

	assert.Equal(t, []string{`App\Models\Processor`}, s.Imports)
	assert.Empty(t, fn(t, s, "Caller.__construct").ResolvedCalls)
	assert.Equal(t, []string{"Caller.helper", "Processor.run"}, fn(t, s, "Caller.go").ResolvedCalls)
	assert.Equal(t, "Processor", s.Types["Caller"].InstanceSymbols["p"])
}

func TestRuby_InstanceVariablesAndRequire(t *testing.T) {
	src := `require 'json'

class Caller < Base
  def initialize
    @p = Processor.new
  end

  def go
    @p.run
  end
end
`
	s := process(t, grammar.Ruby, src)

	assert.Equal(t, []string{"json"}, s.Imports)
	assert.Equal(t, []string{"Processor.run"}, fn(t, s, "Caller.go").ResolvedCalls)
	assert.Equal(t, "Processor", s.Types["Caller"].InstanceSymbols["p"])
	assert.Equal(t, []string{"Base"}, s.Types["Caller"].BaseTypes)
}

func TestCSharp_FieldsAndUsings(t *testing.T) {
	src := `using System.Text;

class Caller : Base {
    private Processor p;

    public void Go() {
        p.Run();
        Helper();
    }

    void Helper() {}
}
`
	s := process(t, grammar.CSharp, src)

	assert.Equal(t, []string{"System.Text"}, s.Imports)
	assert.Equal(t, []string{"Caller.Helper", "Processor.Run"}, fn(t, s, "Caller.Go").ResolvedCalls)
}

func TestCPP_QualifiedDefinitionsAndThis(t *testing.T) {
	src := `#include <vector>

class Widget : public Base {
public:
    void draw() {
        helper();
        this->paint();
    }
    void helper();
    void paint() {}
};

void Widget::helper() {
    ns::util::log();
}
`
	s := process(t, grammar.CPP, src)

	assert.Equal(t, []string{"vector"}, s.Imports)
	assert.Equal(t, []string{"Widget.helper", "Widget.paint"}, fn(t, s, "Widget.draw").ResolvedCalls)
	assert.Equal(t, []string{"ns::util::log"}, fn(t, s, "Widget.helper").ResolvedCalls)
	assert.Equal(t, []string{"Base"}, s.Types["Widget"].BaseTypes)
}
