package gpu

// NV12-style shader alternates. None of the two current encoder backends
// consume NV12 (both take the packed tile layout produced by
// yuv420ShaderSrc: Vendor A as the encode texture itself, Vendor B as a
// DMA-BUF export of it), so these are not wired
// into any Monitor's pipeline. They are kept, named, for a future encoder
// that accepts a true NV12 plane pair; unwiredShaderSources below exists so
// a test can assert their source shape without a GL context.

// yuv420MainViewShaderSrc renders the Y plane of an NV12 layout: full
// resolution luma, one sample per output texel.
const yuv420MainViewShaderSrc = `
uniform sampler2D tex;
uniform vec2 tex_size;
uniform vec4 ymath;
void main(void)
{
    vec4 pix;
    pix = texture2D(tex, gl_FragCoord.xy / tex_size);
    pix.a = 1.0;
    gl_FragColor = vec4(clamp(dot(ymath, pix), 0.0, 1.0), 0.0, 0.0, 1.0);
}
`

// yuv420AuxViewShaderSrc renders the interleaved UV plane of an NV12
// layout at half resolution: each output texel holds one 2x2-averaged
// (U, V) pair in its r/g channels.
const yuv420AuxViewShaderSrc = `
uniform sampler2D tex;
uniform vec2 tex_size;
uniform vec4 umath;
uniform vec4 vmath;
void main(void)
{
    vec4 pix;
    vec4 sum;
    float x;
    float y;
    x = floor(gl_FragCoord.x) * 2.0 + 0.5;
    y = floor(gl_FragCoord.y) * 2.0 + 0.5;
    sum = texture2D(tex, vec2(x, y) / tex_size);
    sum += texture2D(tex, vec2(x + 1.0, y) / tex_size);
    sum += texture2D(tex, vec2(x, y + 1.0) / tex_size);
    sum += texture2D(tex, vec2(x + 1.0, y + 1.0) / tex_size);
    sum /= 4.0;
    sum.a = 1.0;
    pix = vec4(clamp(dot(umath, sum), 0.0, 1.0), clamp(dot(vmath, sum), 0.0, 1.0), 0.0, 1.0);
    gl_FragColor = pix;
}
`

// yuv420AuxViewV2ShaderSrc is a second auxiliary-view variant that swaps
// the U/V channel order relative to yuv420AuxViewShaderSrc, matching a
// decoder that expects (V, U) rather than (U, V) in the NV12 plane.
const yuv420AuxViewV2ShaderSrc = `
uniform sampler2D tex;
uniform vec2 tex_size;
uniform vec4 umath;
uniform vec4 vmath;
void main(void)
{
    vec4 sum;
    float x;
    float y;
    x = floor(gl_FragCoord.x) * 2.0 + 0.5;
    y = floor(gl_FragCoord.y) * 2.0 + 0.5;
    sum = texture2D(tex, vec2(x, y) / tex_size);
    sum += texture2D(tex, vec2(x + 1.0, y) / tex_size);
    sum += texture2D(tex, vec2(x, y + 1.0) / tex_size);
    sum += texture2D(tex, vec2(x + 1.0, y + 1.0) / tex_size);
    sum /= 4.0;
    sum.a = 1.0;
    gl_FragColor = vec4(clamp(dot(vmath, sum), 0.0, 1.0), clamp(dot(umath, sum), 0.0, 1.0), 0.0, 1.0);
}
`

// unwiredShaderSources lists the NV12-style alternates above, for a test
// that checks their source shape without needing a live GL context.
var unwiredShaderSources = map[string]string{
	"yuv420_mv":    yuv420MainViewShaderSrc,
	"yuv420_av":    yuv420AuxViewShaderSrc,
	"yuv420_av_v2": yuv420AuxViewV2ShaderSrc,
}
