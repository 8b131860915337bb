// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bundle

// runtime is evaluated at the top of every chunk. The first chunk to run
// installs the loader; later ones reuse it.
const runtime = `var __lens = (function (g) {
  if (g.__lens) return g.__lens;
  var defs = {}, cache = {}, files = {}, pending = {}, library = null;
  var nativeRequire = typeof require === "function" ? require : null;

  function native(id) {
    if (!nativeRequire) throw new Error("lens: no native require for " + id);
    return nativeRequire(id);
  }

  function esm(m) {
    if (m && m.__esModule) return m;
    var ns = {default: m};
    if (m && typeof m === "object") for (var k in m) if (k !== "default") ns[k] = m[k];
    return ns;
  }

  function inject(name, f) {
    return new Promise(function (resolve, reject) {
      if (f.css) {
        var link = document.createElement("link");
        link.rel = "stylesheet";
        link.href = f.css;
        document.head.appendChild(link);
      }
      var s = document.createElement("script");
      s.src = f.js;
      s.onload = function () { resolve(); };
      s.onerror = function () { reject(new Error("lens: loading chunk " + name + " failed")); };
      document.head.appendChild(s);
    });
  }

  // load fetches chunk name after the chunks it requires, in order.
  function load(name) {
    if (pending[name]) return pending[name];
    var f = files[name];
    if (!f) return Promise.reject(new Error("lens: unknown chunk " + name));
    var ready = (f.requires || []).reduce(function (p, r) {
      return p.then(function () { return load(r); });
    }, Promise.resolve());
    var p = ready.then(function () { return inject(name, f); });
    pending[name] = p;
    p.catch(function () { if (pending[name] === p) delete pending[name]; });
    return p;
  }

  function req(id) {
    var c = cache[id];
    if (c) return c.exports;
    var d = defs[id];
    if (!d) throw new Error("lens: module " + id + " is not loaded");
    var module = {id: id, exports: {}};
    cache[id] = module;
    var local = function (s) {
      var dep = d.deps[s];
      return dep ? dep() : native(s);
    };
    var dynamic = function (s) {
      return Promise.resolve().then(function () { return local(s); }).then(esm);
    };
    d.fn.call(module.exports, module, module.exports, local, dynamic);
    return module.exports;
  }

  function lib() {
    if (!library) throw new Error("lens: no vendor library");
    var v;
    switch (library.strategy) {
      case "commonjs":
      case "commonjs2":
        v = native(library.name);
        break;
      case "global":
        v = (typeof global !== "undefined" ? global : g)[library.name];
        break;
      default:
        v = g[library.name];
    }
    if (typeof v !== "function") throw new Error("lens: vendor library " + library.name + " is not loaded");
    return v;
  }

  return g.__lens = {
    define: function (id, deps, fn) { if (!defs[id]) defs[id] = {deps: deps, fn: fn}; },
    require: req,
    native: native,
    vendor: function (key) { return lib()(key); },
    load: function (name, id) {
      var ready = files[name] ? load(name) : Promise.resolve();
      return ready.then(function () { return req(id); });
    },
    chunks: function (t) { for (var k in t) files[k] = t[k]; },
    library: function (strategy, name) { library = {strategy: strategy, name: name}; }
  };
})(typeof window !== "undefined" ? window : globalThis);
`
